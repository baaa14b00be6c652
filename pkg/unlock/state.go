package unlock

// State enumerates the phases of one retrieval/unlock operation.
type State int

const (
	StateIdle State = iota
	StateSearching
	StateNotFound
	StateExpired
	StateFound
	StateDecryptingCodeOnly
	StatePasswordRequired
	StateDecryptingWithPassword
	StateUnlocked
	StateRevealed
	StateBurnScheduled
	StateBurning
	StateBurnt
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSearching:
		return "searching"
	case StateNotFound:
		return "not_found"
	case StateExpired:
		return "expired"
	case StateFound:
		return "found"
	case StateDecryptingCodeOnly:
		return "decrypting_code_only"
	case StatePasswordRequired:
		return "password_required"
	case StateDecryptingWithPassword:
		return "decrypting_with_password"
	case StateUnlocked:
		return "unlocked"
	case StateRevealed:
		return "revealed"
	case StateBurnScheduled:
		return "burn_scheduled"
	case StateBurning:
		return "burning"
	case StateBurnt:
		return "burnt"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Terminal reports whether no further transitions can occur from s,
// other than the forced expiry cut-over.
func (s State) Terminal() bool {
	switch s {
	case StateNotFound, StateExpired, StateBurnt, StateFailed:
		return true
	}
	return false
}
