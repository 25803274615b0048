package tinysip

import (
	"fmt"

	"github.com/google/uuid"
)

// contactInstanceUUID derives the Contact `+sip.instance` URN from the
// local MAC address, per §6's fixed format. The UUID is parsed (not
// randomly generated) so a malformed MAC can never silently produce an
// invalid instance-id.
func contactInstanceUUID(mac [6]byte) (uuid.UUID, error) {
	s := fmt.Sprintf("b5fc7dec-40e2-11e9-b210-%02x%02x%02x%02x%02x%02x",
		mac[0], mac[1], mac[2], mac[3], mac[4], mac[5])
	return uuid.Parse(s)
}

// newCallID returns a fresh Call-ID token, the same way the teacher mints
// one per client transaction: a random UUID's string form.
func newCallID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// newTag returns a fresh From/To tag value.
func newTag() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
