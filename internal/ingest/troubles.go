package ingest

import "fmt"

type (
	TroubleType int

	// Trouble is a failure to ingest a single item. A trouble never
	// aborts the run, it is recorded against the item and reported.
	Trouble struct {
		error
		tType TroubleType
	}
)

const (
	HASH_FAILURE TroubleType = iota
	DERIVATIVE_FAILURE
	REGISTRATION_FAILURE
	PLACEMENT_FAILURE
)

func newTrouble(tType TroubleType, err error) *Trouble {
	return &Trouble{error: err, tType: tType}
}

func (t *Trouble) Type() TroubleType { return t.tType }

func (t *Trouble) Unwrap() error { return t.error }

func (t *Trouble) String() string {
	return fmt.Sprintf("Trouble{type=%s err=%v}", t.tType, t.error)
}

func (t TroubleType) String() string {
	switch t {
	case HASH_FAILURE:
		return fmt.Sprintf("HASH_FAILURE[%d]", t)
	case DERIVATIVE_FAILURE:
		return fmt.Sprintf("DERIVATIVE_FAILURE[%d]", t)
	case REGISTRATION_FAILURE:
		return fmt.Sprintf("REGISTRATION_FAILURE[%d]", t)
	case PLACEMENT_FAILURE:
		return fmt.Sprintf("PLACEMENT_FAILURE[%d]", t)
	default:
		return fmt.Sprintf("UNKNOWN[%d]", t)
	}
}
