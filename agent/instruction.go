package agent

// Provider supplies dynamic instruction text at runtime.
// Implementations can derive instructions from the turn input, session
// scratch, the time of day and so on.
type Provider interface {
	Instruction(in Input) (string, error)
}

// Func is a functional adapter to allow ordinary functions to be used as Providers.
type Func func(in Input) (string, error)

// Instruction implements Provider.
func (f Func) Instruction(in Input) (string, error) { return f(in) }

// Instruction represents either a static template or a dynamic provider.
// Either way the resolved text is rendered with text/template against the
// agent's prompt data before it reaches the gateway.
type Instruction struct {
	text     string
	provider Provider
}

// NewInstructionFromText creates an Instruction from a static string.
func NewInstructionFromText(text string) Instruction { return Instruction{text: text} }

// NewInstructionFromProvider creates an Instruction from a dynamic provider.
func NewInstructionFromProvider(p Provider) Instruction { return Instruction{provider: p} }

// NewInstructionFromFunc creates an Instruction from a function.
func NewInstructionFromFunc(f func(in Input) (string, error)) Instruction {
	return Instruction{provider: Func(f)}
}

// IsStatic returns true if the instruction is backed by a static string.
func (i Instruction) IsStatic() bool { return i.provider == nil }

// IsZero reports whether neither text nor provider is set.
func (i Instruction) IsZero() bool { return i.provider == nil && i.text == "" }

// Resolve returns the instruction text, invoking the provider if needed.
func (i Instruction) Resolve(in Input) (string, error) {
	if i.provider != nil {
		return i.provider.Instruction(in)
	}
	return i.text, nil
}
