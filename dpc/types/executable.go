package types

import (
	"errors"

	"github.com/kysee/dpc/utils"
)

// PublicVariables keys a program execution to the transaction it runs in.
type PublicVariables struct {
	TransactionID []byte
}

// Execution is the trace produced by running an executable. It is opaque to
// the pipeline beyond being embeddable as an outer-proof witness.
type Execution struct {
	ProgramID []byte
	Digest    []byte
}

// Executable is a program circuit runnable against public variables.
type Executable interface {
	ProgramID() []byte
	Execute(PublicVariables) (*Execution, error)
}

// NoopExecutable is the trivial program: it accepts any transaction and
// produces the canonical trace digest.
type NoopExecutable struct{}

func (NoopExecutable) ProgramID() []byte {
	return NoopProgramID()
}

func (e NoopExecutable) Execute(public PublicVariables) (*Execution, error) {
	if len(public.TransactionID) == 0 {
		return nil, errors.New("missing transaction id")
	}
	programID := e.ProgramID()
	return &Execution{
		ProgramID: programID,
		Digest:    utils.MiMCHash(public.TransactionID, programID),
	}, nil
}
