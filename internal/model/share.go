package model

import "fmt"

// PartyCount is the number of protocol parties; party indices 0, 1, 2 are
// fixed roles and do not depend on which user initiated matching.
const PartyCount = 3

type (
	// Share is one party's opaque fragment of a user's private attributes.
	Share []byte

	// ShareSet holds one share per party index for a single user.
	ShareSet [PartyCount]Share

	// MergedShareSet is the per-party input of one session: party i receives
	// the merge of both users' i-th shares.
	MergedShareSet struct {
		UserA  string
		UserB  string
		Shares [PartyCount]Share
	}
)

// ShareFileName is the client-side file name of the share for party i.
func ShareFileName(i int) string {
	return fmt.Sprintf("share%d.bin", i)
}
