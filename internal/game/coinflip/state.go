package coinflip

import (
	"encoding/json"
	"fmt"
)

// DuelState is the persisted state of a pending duel: each participant's
// committed choice, empty until submitted. It round-trips through the
// match record between turns.
type DuelState struct {
	CreatorChoice  Choice `json:"creator_choice,omitempty"`
	OpponentChoice Choice `json:"opponent_choice,omitempty"`
}

// Ready reports whether both participants have committed a choice.
func (s *DuelState) Ready() bool {
	return s.CreatorChoice.Valid() && s.OpponentChoice.Valid()
}

// Marshal serializes the duel state for persistence.
func (s *DuelState) Marshal() (json.RawMessage, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal duel state: %w", err)
	}
	return data, nil
}

// UnmarshalDuelState restores a state persisted by Marshal. An empty or
// absent blob yields a zero state with no choices committed.
func UnmarshalDuelState(data json.RawMessage) (*DuelState, error) {
	s := &DuelState{}
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal duel state: %w", err)
	}
	return s, nil
}
