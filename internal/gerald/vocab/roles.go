package vocab

// Role tags a word with the part it plays in a generated utterance.
type Role string

const (
	Connector  Role = "connector"
	Topic      Role = "topic"
	Reaction   Role = "reaction"
	Descriptor Role = "descriptor"
)

// AllRoles lists the roles in the order a default utterance uses them.
var AllRoles = []Role{Connector, Topic, Reaction, Descriptor}

// Roles maps each role to its candidate words. Candidates are only usable
// once the bot has actually learned them.
type Roles map[Role][]string

// DefaultSeed is the starter vocabulary for a fresh bot.
var DefaultSeed = []string{
	"mate", "innit", "bloody", "hell", "proper", "mental", "rubbish",
	"cant", "be", "arsed", "whatever", "dont", "care", "you", "lot",
	"tyler", "massive", "heavy", "pounds", "weight", "fat",
}

// DefaultResetSeed is what the vocabulary is reset to on request.
var DefaultResetSeed = []string{"mate", "tyler", "massive"}

// DefaultRoles returns a fresh copy of the built-in role candidates.
func DefaultRoles() Roles {
	return Roles{
		Connector:  {"mate", "innit", "bloody", "proper", "hell"},
		Topic:      {"tyler", "massive", "heavy", "pounds", "weight", "fat", "huge", "big"},
		Reaction:   {"whatever", "mental", "rubbish", "cant", "arsed", "care", "dont"},
		Descriptor: {"massive", "huge", "heavy", "big", "proper", "fat"},
	}
}

// Pool returns the candidates for role that r knows, in candidate order and
// without duplicates. It is recomputed on every call and never cached.
func (rs Roles) Pool(r Reader, role Role) []string {
	cands := rs[role]
	if len(cands) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(cands))
	pool := make([]string, 0, len(cands))
	for _, w := range cands {
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		if r.Contains(w) {
			pool = append(pool, w)
		}
	}
	return pool
}

// Clone returns a deep copy.
func (rs Roles) Clone() Roles {
	out := make(Roles, len(rs))
	for k, v := range rs {
		out[k] = append([]string(nil), v...)
	}
	return out
}
