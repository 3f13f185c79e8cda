package domain

type ctxKey string

const (
	CredentialCtxKey ctxKey = "jk-credential"
)

const (
	AccessTokenHeader   = "X-Access-Token"
	IdentityTokenHeader = "X-Identity-Token"
	UnlistedHeader      = "X-Unlisted"
	OutcomeHeader       = "X-Rewrite-Outcome"
)

const (
	MIMEJSONLD   = "application/ld+json"
	MIMEActivity = "application/activity+json"
)

type OwnershipMode int

const (
	OwnershipNone OwnershipMode = iota
	OwnershipSelfManaged
	OwnershipVerified
)

func (m OwnershipMode) String() string {
	switch m {
	case OwnershipNone:
		return "none"
	case OwnershipSelfManaged:
		return "self-managed"
	case OwnershipVerified:
		return "verified"
	default:
		return "error"
	}
}

// ParseOwnershipMode is the inverse of OwnershipMode.String.
func ParseOwnershipMode(s string) OwnershipMode {
	switch s {
	case "self-managed":
		return OwnershipSelfManaged
	case "verified":
		return OwnershipVerified
	default:
		return OwnershipNone
	}
}

type ActivityKind string

const (
	ActivityCreate    ActivityKind = "Create"
	ActivityUpdate    ActivityKind = "Update"
	ActivityReference ActivityKind = "Reference"
	ActivityOffer     ActivityKind = "Offer"
	ActivityDelete    ActivityKind = "Delete"
)

type WriteOutcome int

const (
	OutcomePlain WriteOutcome = iota
	OutcomeUnchanged
	OutcomeRewritten
	OutcomeStoredWithoutRewrite
)

func (o WriteOutcome) String() string {
	switch o {
	case OutcomePlain:
		return "plain"
	case OutcomeUnchanged:
		return "unchanged"
	case OutcomeRewritten:
		return "rewritten"
	case OutcomeStoredWithoutRewrite:
		return "stored-without-rewrite"
	default:
		return "error"
	}
}
