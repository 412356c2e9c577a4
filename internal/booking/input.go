package booking

// InputKind tells the engine what a guardian did, independent of how the
// front-end rendered it.
type InputKind int

const (
	InputValue InputKind = iota
	InputBack
	InputManual
)

func (k InputKind) String() string {
	switch k {
	case InputBack:
		return "back"
	case InputManual:
		return "manual"
	}
	return "value"
}

// Input is resolved once at the front-end boundary.
type Input struct {
	Kind  InputKind
	Value string
}

func Value(v string) Input { return Input{Kind: InputValue, Value: v} }

func Back() Input { return Input{Kind: InputBack} }

func Manual() Input { return Input{Kind: InputManual} }
