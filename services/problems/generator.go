// Package problemsvc assigns problem references to session slots. Problem
// authoring and difficulty selection live in a separate system; the flow
// engine only needs stable opaque identifiers.
package problemsvc

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/sorobanclub/backend/core/session"
)

type generator struct{}

var _ session.ProblemSource = (*generator)(nil)

func NewGenerator() *generator { return &generator{} }

func (generator) GenerateSlots(_ context.Context, kind session.PartKind, count int) ([]session.Slot, error) {
	slots := make([]session.Slot, count)
	for i := range slots {
		slots[i].ProblemID = fmt.Sprintf("%s:%s", kind, uuid.New())
	}
	return slots, nil
}
