package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/pediatric-clinic-booking/internal/auth"
	"github.com/hackgods/pediatric-clinic-booking/internal/db"
)

// Seeded guardians get phones +7900xxxxxxx numbered from 1, all sharing
// SEED_SECRET, so the simulator can sign in as any of them.
const phonePrefix = "+7900"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}
	secret := os.Getenv("SEED_SECRET")
	if secret == "" {
		secret = "secret"
	}
	guardians := 500
	if v, err := strconv.Atoi(os.Getenv("SEED_GUARDIANS")); err == nil && v > 0 {
		guardians = v
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn, db.PoolOptions{})
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	hash, err := auth.HashSecret(secret)
	if err != nil {
		log.Fatalf("hash secret: %v", err)
	}

	if err := seedFamilies(context.Background(), pool, guardians, hash); err != nil {
		log.Fatalf("seed families: %v", err)
	}

	log.Printf("STAFF_SECRET_HASH matching SEED_SECRET: %s", hash)
	log.Println("seed complete")
}

func seedPhone(i int) string {
	return fmt.Sprintf("%s%07d", phonePrefix, i+1)
}

// seedFamilies inserts guardians with one to three children each. Reruns
// skip phones that already exist.
func seedFamilies(ctx context.Context, pool *pgxpool.Pool, count int, hash string) error {
	log.Printf("seeding %d guardians", count)

	const batchSize = 100
	now := time.Now()

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			guardianID := uuid.New()
			lastName := gofakeit.LastName()

			tag, err := tx.Exec(ctx, `
				INSERT INTO guardians (id, phone, password_hash, first_name, last_name, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, now(), now())
				ON CONFLICT (phone) DO NOTHING
			`, guardianID, seedPhone(i), hash, gofakeit.FirstName(), lastName)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
			if tag.RowsAffected() == 0 {
				continue
			}

			kids := gofakeit.Number(1, 3)
			for k := 0; k < kids; k++ {
				childID := uuid.New()
				birth := gofakeit.DateRange(now.AddDate(-17, 0, 0), now.AddDate(0, -1, 0))

				if _, err := tx.Exec(ctx, `
					INSERT INTO children (id, first_name, last_name, birth_date, created_at, updated_at)
					VALUES ($1, $2, $3, $4, now(), now())
				`, childID, gofakeit.FirstName(), lastName, birth); err != nil {
					_ = tx.Rollback(ctx)
					return err
				}
				if _, err := tx.Exec(ctx, `
					INSERT INTO guardian_children (guardian_id, child_id) VALUES ($1, $2)
				`, guardianID, childID); err != nil {
					_ = tx.Rollback(ctx)
					return err
				}
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Printf("guardians seeded: %d/%d", end, count)
	}

	return nil
}
