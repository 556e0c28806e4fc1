package services

import (
	"context"
	"strings"

	"github.com/Singhary/chaty/models"
	"github.com/Singhary/chaty/topics"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type FriendService struct {
	store Store
	users *UserService
	pub   Publisher
	log   *zap.Logger
}

func NewFriendService(store Store, users *UserService, pub Publisher, log *zap.Logger) *FriendService {
	return &FriendService{store: store, users: users, pub: pub, log: log}
}

// IsFriend checks user:{a}:friends for b.
func (fs *FriendService) IsFriend(ctx context.Context, a, b string) (bool, error) {
	ok, err := fs.store.SIsMember(ctx, friendsKey(a), b)
	if err != nil {
		return false, Upstream("failed to check friendship", err)
	}
	return ok, nil
}

// HasIncomingRequest reports whether sender has a pending request to receiver.
func (fs *FriendService) HasIncomingRequest(ctx context.Context, receiverID, senderID string) (bool, error) {
	ok, err := fs.store.SIsMember(ctx, incomingRequestsKey(receiverID), senderID)
	if err != nil {
		return false, Upstream("failed to check friend requests", err)
	}
	return ok, nil
}

// SendFriendRequest adds senderID to the incoming request set of the user
// registered with targetEmail.
func (fs *FriendService) SendFriendRequest(ctx context.Context, senderID, targetEmail string) error {
	if senderID == "" {
		return Unauthenticated("unauthorized")
	}
	email := NormalizeEmail(targetEmail)
	if email == "" || !strings.Contains(email, "@") {
		return InvalidRequest("invalid email")
	}

	targetID, err := fs.users.ResolveEmail(ctx, email)
	if err != nil {
		return err
	}
	if targetID == senderID {
		return InvalidRequest("you cannot add yourself")
	}

	var alreadyRequested, reverseRequested, alreadyFriends bool
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		alreadyRequested, err = fs.HasIncomingRequest(gctx, targetID, senderID)
		return err
	})
	g.Go(func() (err error) {
		reverseRequested, err = fs.HasIncomingRequest(gctx, senderID, targetID)
		return err
	})
	g.Go(func() (err error) {
		alreadyFriends, err = fs.IsFriend(gctx, targetID, senderID)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}
	switch {
	case alreadyFriends:
		return Conflict("user already friend")
	case alreadyRequested:
		return Conflict("user already added")
	case reverseRequested:
		return Conflict("user has already sent you a friend request")
	}

	sender, err := fs.users.Get(ctx, senderID)
	if err != nil {
		return err
	}
	if err := fs.store.SAdd(ctx, incomingRequestsKey(targetID), senderID); err != nil {
		return Upstream("failed to send friend request", err)
	}

	fs.log.Debug("friend request sent", zap.String("sender", senderID), zap.String("target", targetID))
	return publishAll(ctx, fs.pub, notice{
		topic: topics.User(targetID, topics.IncomingRequests),
		event: models.EventIncomingFriendRequests,
		payload: models.IncomingFriendRequest{
			SenderID:    sender.ID,
			SenderEmail: sender.Email,
			SenderName:  sender.Name,
			SenderImage: sender.Image,
		},
	})
}

// AcceptFriendRequest turns the pending request from senderID into a
// friendship in both directions and notifies both parties.
func (fs *FriendService) AcceptFriendRequest(ctx context.Context, receiverID, senderID string) error {
	if receiverID == "" {
		return Unauthenticated("not logged in")
	}
	if senderID == "" {
		return InvalidRequest("invalid request payload")
	}

	alreadyFriends, err := fs.IsFriend(ctx, receiverID, senderID)
	if err != nil {
		return err
	}
	if alreadyFriends {
		return Conflict("user already friend")
	}
	pending, err := fs.HasIncomingRequest(ctx, receiverID, senderID)
	if err != nil {
		return err
	}
	if !pending {
		return InvalidRequest("user has not sent you a friend request")
	}

	parties, err := fs.users.GetMany(ctx, []string{receiverID, senderID})
	if err != nil {
		return err
	}
	receiver, sender := parties[0], parties[1]

	ops := NewOps().
		SAdd(friendsKey(receiverID), senderID).
		SAdd(friendsKey(senderID), receiverID).
		SRem(incomingRequestsKey(receiverID), senderID)
	if err := fs.store.Atomic(ctx, ops); err != nil {
		return Upstream("failed to add friend", err)
	}

	fs.log.Debug("friend request accepted", zap.String("receiver", receiverID), zap.String("sender", senderID))
	return publishAll(ctx, fs.pub,
		notice{topic: topics.User(senderID, topics.Friends), event: models.EventNewFriend, payload: receiver},
		notice{topic: topics.User(receiverID, topics.Friends), event: models.EventNewFriend, payload: sender},
	)
}

// DenyFriendRequest removes the pending request from senderID.
func (fs *FriendService) DenyFriendRequest(ctx context.Context, receiverID, senderID string) error {
	if receiverID == "" {
		return Unauthenticated("not logged in")
	}
	if senderID == "" {
		return InvalidRequest("invalid request payload")
	}
	pending, err := fs.HasIncomingRequest(ctx, receiverID, senderID)
	if err != nil {
		return err
	}
	if !pending {
		return InvalidRequest("user has not sent you a friend request")
	}
	if err := fs.store.SRem(ctx, incomingRequestsKey(receiverID), senderID); err != nil {
		return Upstream("failed to deny friend request", err)
	}
	return nil
}

func (fs *FriendService) ListFriends(ctx context.Context, userID string) ([]models.User, error) {
	ids, err := fs.store.SMembers(ctx, friendsKey(userID))
	if err != nil {
		return nil, Upstream("failed to load friends", err)
	}
	return fs.users.GetMany(ctx, ids)
}

func (fs *FriendService) ListIncomingRequests(ctx context.Context, userID string) ([]models.IncomingFriendRequest, error) {
	ids, err := fs.store.SMembers(ctx, incomingRequestsKey(userID))
	if err != nil {
		return nil, Upstream("failed to load friend requests", err)
	}
	senders, err := fs.users.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	requests := make([]models.IncomingFriendRequest, 0, len(senders))
	for _, s := range senders {
		requests = append(requests, models.IncomingFriendRequest{
			SenderID:    s.ID,
			SenderEmail: s.Email,
			SenderName:  s.Name,
			SenderImage: s.Image,
		})
	}
	return requests, nil
}
