package intent

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mmynk/trustsplit/internal/chain"
	apperrors "github.com/mmynk/trustsplit/internal/errors"
	"github.com/mmynk/trustsplit/internal/models"
	"github.com/mmynk/trustsplit/internal/session"
)

// ParseMemberList parses a comma-separated address list for a new group.
// Entries are trimmed and blanks dropped. The caller is put first when not
// already listed and duplicates are removed.
func ParseMemberList(text string, caller common.Address) ([]common.Address, error) {
	var members []common.Address
	for _, raw := range strings.Split(text, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		addr, err := models.ParseIdentity(raw)
		if err != nil {
			return nil, apperrors.WithMetadata(apperrors.CodeInvalidMemberAddress,
				"invalid member address: "+raw, map[string]string{"address": raw})
		}
		if !models.ContainsIdentity(members, addr) {
			members = append(members, addr)
		}
	}
	if len(members) == 0 {
		return nil, apperrors.New(apperrors.CodeInvalidMemberAddress, "enter at least one member address")
	}
	if !models.ContainsIdentity(members, caller) {
		members = append([]common.Address{caller}, members...)
	}
	return members, nil
}

// CreateGroup deploys a new group through the factory registry. The session
// must be ready but needs no active group.
func (s *Service) CreateGroup(ctx context.Context, sess *session.Session, memberList string) (res Result, err error) {
	defer func() { s.record(KindCreateGroup, err) }()

	if err := sess.Ready(); err != nil {
		return Result{Kind: KindCreateGroup}, err
	}
	who := sess.Identity()

	members, err := ParseMemberList(memberList, who)
	if err != nil {
		return Result{Kind: KindCreateGroup}, err
	}

	release, err := s.acquire(common.Address{}, who, KindCreateGroup)
	if err != nil {
		return Result{Kind: KindCreateGroup}, err
	}
	defer release()

	before, err := s.projector.Directory(ctx, who, true)
	if err != nil {
		return Result{Kind: KindCreateGroup}, err
	}
	known := make(map[common.Address]bool, len(before))
	for _, g := range before {
		known[g.Address] = true
	}

	var created common.Address
	res, err = s.run(ctx, mutation{
		kind:     KindCreateGroup,
		identity: who,
		submit: func(ctx context.Context) (chain.Tx, error) {
			return s.projector.Registry().CreateGroup(ctx, members)
		},
		observed: func(ctx context.Context) (bool, error) {
			groups, err := s.projector.Directory(ctx, who, true)
			if err != nil {
				return false, err
			}
			for _, g := range groups {
				if !known[g.Address] {
					created = g.Address
					return true, nil
				}
			}
			return false, nil
		},
	})
	res.Group = created
	return res, err
}
