// Package compliance gates signing attempts behind the authentication
// protocol each eIDAS signature tier requires, and produces the compliance
// record stored with the signed field.
package compliance

// Custom types to match PostgreSQL enums
type Tier string
type Method string

const (
	// Signature tiers
	TierSimple Tier = "simple"
	TierSES    Tier = "ses"
	TierAES    Tier = "aes"
	TierQES    Tier = "qes"

	// Authentication methods
	MethodEmail         Method = "email"
	MethodSMS           Method = "sms"
	MethodPassword      Method = "password"
	MethodAuthenticator Method = "authenticator"
)

// Policy describes what one tier demands before a signature may complete.
// Adding a tier is a row in the table below, not a new code path.
type Policy struct {
	Tier            Tier
	Level           string
	LegalValue      string
	RequiredFactors int
	AllowedMethods  []Method
	Requirements    []string
	Available       bool
}

var policies = map[Tier]Policy{
	TierSimple: {
		Tier:            TierSimple,
		Level:           "eIDAS Simple",
		LegalValue:      "Basic",
		RequiredFactors: 0,
		Requirements:    []string{"Signer intent captured"},
		Available:       true,
	},
	TierSES: {
		Tier:            TierSES,
		Level:           "eIDAS SES",
		LegalValue:      "Basic",
		RequiredFactors: 1,
		AllowedMethods:  []Method{MethodEmail, MethodSMS, MethodPassword},
		Requirements: []string{
			"Signer intent captured",
			"Signer identity verified by one factor",
		},
		Available: true,
	},
	TierAES: {
		Tier:            TierAES,
		Level:           "eIDAS AES",
		LegalValue:      "Advanced",
		RequiredFactors: 2,
		AllowedMethods:  []Method{MethodEmail, MethodSMS, MethodAuthenticator},
		Requirements: []string{
			"Signer intent captured",
			"Signer identity verified by two independent factors",
			"Signature uniquely linked to the signer",
		},
		Available: true,
	},
	TierQES: {
		Tier:            TierQES,
		Level:           "eIDAS QES",
		LegalValue:      "Qualified",
		RequiredFactors: 2,
		AllowedMethods:  []Method{MethodEmail, MethodSMS, MethodAuthenticator},
		Requirements: []string{
			"Qualified certificate issued by a trust service provider",
			"Signer identity verified by two independent factors",
			"Qualified timestamp applied",
		},
		// Pending certificate-authority integration.
		Available: false,
	},
}

// PolicyFor returns the policy for a tier. The second result is false for
// unknown tiers.
func PolicyFor(tier Tier) (Policy, bool) {
	p, ok := policies[tier]
	return p, ok
}

// ValidTier reports whether the tier is one of the four known tiers.
func ValidTier(tier Tier) bool {
	_, ok := policies[tier]
	return ok
}

func (p Policy) allows(m Method) bool {
	for _, a := range p.AllowedMethods {
		if a == m {
			return true
		}
	}
	return false
}
