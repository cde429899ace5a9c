package parser

import (
	"strings"

	"github.com/google/uuid"
	"github.com/sipcore/sipreactor/message"
)

// RandomSource is the "random_number()" collaborator spec.md 6.2 names,
// used to generate To-tags and Via branches. Backed by google/uuid
// rather than a hand-rolled PRNG, per DESIGN.md.
type RandomSource struct{}

func (RandomSource) NewTag() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
}

// NewBranch generates an RFC-3261-compliant branch: the magic cookie
// followed by a unique token, per spec.md 6.1 / RFC 3261 8.1.1.7.
func (RandomSource) NewBranch() string {
	return message.RFC3261BranchMagicCookie + strings.ReplaceAll(uuid.NewString(), "-", "")
}

var _ message.TagSource = RandomSource{}
