package cal

import (
	"context"
	"strings"

	"govna/internal/scpi"
	"govna/internal/vna"
)

// ListSets returns the names of every cal set stored on the instrument.
func ListSets(ctx context.Context, sess *vna.Session) ([]string, error) {
	raw, err := sess.Query(ctx, "cset:catalog?")
	if err != nil {
		return nil, err
	}
	s := strings.ReplaceAll(strings.TrimSpace(raw), `"`, "")
	if s == "" {
		return nil, nil
	}
	names := strings.Split(s, ",")
	for i := range names {
		names[i] = strings.TrimSpace(names[i])
	}
	return names, nil
}

// LoadSet activates a stored cal set on a channel. Existence is checked
// against the live catalog first; the catalog is instrument-owned truth and
// is never cached locally. With useStimulus the channel's stimulus is set to
// match the cal set's.
func LoadSet(ctx context.Context, sess *vna.Session, name string, useStimulus bool, ch int) error {
	names, err := ListSets(ctx, sess)
	if err != nil {
		return err
	}
	found := false
	for _, n := range names {
		if n == name {
			found = true
			break
		}
	}
	if !found {
		return &scpi.NotFoundError{Kind: "cal set", Name: name}
	}

	stim := 0
	if useStimulus {
		stim = 1
	}
	if err := sess.Writef(ctx, `sense%d:correction:cset:activate "%s", %d`, ch, name, stim); err != nil {
		return err
	}
	if err := sess.WaitOPC(ctx, 0); err != nil {
		return err
	}
	return sess.ErrCheck(ctx, "load cal set "+name)
}

// DeleteSet removes a stored cal set by name. Deleting a name that does not
// exist is not an error; the instrument ignores it.
func DeleteSet(ctx context.Context, sess *vna.Session, name string) error {
	return sess.Writef(ctx, `cset:delete "%s"`, name)
}
