package domain

// Transition defines a valid state change: Action moves an entity from Src to Dst.
type Transition[S ~string, A ~string] struct {
	Action A
	Src    S
	Dst    S
}

// Workflow is a named transition table consumed by the FSM adapter.
type Workflow[S ~string, A ~string] struct {
	Entity      string
	Transitions []Transition[S, A]
}
