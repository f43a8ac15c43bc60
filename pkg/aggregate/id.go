package aggregate

import "github.com/google/uuid"

// ID identifies one aggregate instance.
type ID string

// NewID returns a fresh time-ordered id.
func NewID() ID {
	a, err := uuid.NewV7()
	if err != nil {
		panic(err)
	}
	return ID(a.String())
}

func (i ID) String() string {
	return string(i)
}

func (i ID) UUID() uuid.UUID {
	u, err := uuid.Parse(string(i))
	if err != nil {
		panic(err)
	}
	return u
}

// NewIdempotencyKey derives a deterministic key from an aggregate id and
// a caller-chosen key, unique across aggregates.
func NewIdempotencyKey(id ID, key string) string {
	return uuid.NewSHA1(id.UUID(), []byte(key)).String()
}
