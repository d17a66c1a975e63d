package engine

import "fmt"

// CheckAction is the client-side precheck run before an action is sent.
// The server stays authoritative; this only catches requests that cannot
// succeed against the snapshot we hold.
func CheckAction(s Snapshot, req ActionRequest) error {
	if s.IsFinished() {
		return ErrGameFinished
	}

	actor, ok := s.CurrentActor()
	if !ok || actor.ID != req.PlayerID {
		return ErrNotYourTurn
	}

	switch req.Type {
	case ActionFold:
		return nil

	case ActionCheck:
		if !s.CanCheck(actor) {
			return fmt.Errorf("%w: %d to call", ErrIllegalAction, s.HighestBet()-actor.BetAmount)
		}
		return nil

	case ActionCall:
		if !s.CanCall(actor) {
			return fmt.Errorf("%w: nothing to call", ErrIllegalAction)
		}
		return nil

	case ActionBet, ActionRaise:
		lo, hi := s.MinRaise(), s.MaxRaise(actor)
		if req.Amount < lo || req.Amount > hi {
			return fmt.Errorf("%w: %d outside [%d, %d]", ErrInvalidAmount, req.Amount, lo, hi)
		}
		return nil

	case ActionAllIn:
		if actor.Chips <= 0 {
			return fmt.Errorf("%w: no chips left", ErrIllegalAction)
		}
		return nil

	default:
		return ErrUnknownAction
	}
}
