package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	maildomain "followup-backend/internal/mail/domain"
	teamdomain "followup-backend/internal/team/domain"
	teamrepo "followup-backend/internal/team/repository"
	"followup-backend/pkg/gmail"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// GmailNotification is the payload Gmail pushes when a watched mailbox changes
type GmailNotification struct {
	EmailAddress string `json:"emailAddress"`
	HistoryID    uint64 `json:"historyId"`
}

// Discoverer runs a targeted discovery pass for one member. Satisfied by the
// follow-up scheduler.
type Discoverer interface {
	DiscoverMember(ctx context.Context, teamID string, member *teamdomain.TeamMember)
}

// Service listens for Gmail push notifications over Pub/Sub and triggers a
// targeted discovery run for the notified member, so fresh replies clear
// stale follow-ups without waiting for the next discovery tick.
type Service struct {
	pubsubClient *pubsub.Client
	teamRepo     teamrepo.TeamRepository
	discoverer   Discoverer
	gmailService *gmail.Service
	topicName    string
	subName      string

	// Deduplication: track last historyId per user to avoid duplicate runs
	mu            sync.Mutex
	lastHistoryID map[string]uint64
}

func NewService(projectID, topicName string, teamRepo teamrepo.TeamRepository, discoverer Discoverer, gmailService *gmail.Service, credentialsFile string) (*Service, error) {
	ctx := context.Background()

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %v", err)
	}

	return &Service{
		pubsubClient:  client,
		teamRepo:      teamRepo,
		discoverer:    discoverer,
		gmailService:  gmailService,
		topicName:     topicName,
		subName:       topicName + "-sub", // Convention: topic-sub
		lastHistoryID: make(map[string]uint64),
	}, nil
}

// Start arms Gmail watches for connected Google accounts and blocks receiving
// push notifications until the context is cancelled
func (s *Service) Start(ctx context.Context) {
	log.Printf("[PubSub] Starting notification service with topic: %s, subscription: %s", s.topicName, s.subName)

	s.armWatches(ctx)

	sub := s.pubsubClient.Subscription(s.subName)
	exists, err := sub.Exists(ctx)
	if err != nil {
		log.Printf("[PubSub] Error checking subscription existence: %v", err)
		return
	}

	if !exists {
		topic := s.pubsubClient.Topic(s.topicName)
		topicExists, err := topic.Exists(ctx)
		if err != nil {
			log.Printf("[PubSub] Error checking topic existence: %v", err)
			return
		}
		if !topicExists {
			log.Printf("[PubSub] Topic %s does not exist, cannot create subscription", s.topicName)
			return
		}

		sub, err = s.pubsubClient.CreateSubscription(ctx, s.subName, pubsub.SubscriptionConfig{
			Topic:       topic,
			AckDeadline: 10 * time.Second,
		})
		if err != nil {
			log.Printf("[PubSub] Failed to create subscription: %v", err)
			return
		}
		log.Printf("[PubSub] Created subscription: %s", s.subName)
	}

	log.Printf("[PubSub] Listening for messages on subscription: %s", s.subName)
	err = sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		s.handleMessage(ctx, msg)
		msg.Ack()
	})
	if err != nil {
		log.Printf("[PubSub] Error receiving messages: %v", err)
	}
}

// armWatches registers a Gmail watch for every connected Google account so
// mailbox changes flow into the Pub/Sub topic
func (s *Service) armWatches(ctx context.Context) {
	teams, err := s.teamRepo.ListActiveTeams()
	if err != nil {
		log.Printf("[PubSub] Failed to list teams for watch arming: %v", err)
		return
	}

	for _, team := range teams {
		members, err := s.teamRepo.ListActiveMembers(team.ID)
		if err != nil {
			log.Printf("[PubSub] Failed to list members for team %s: %v", team.ID, err)
			continue
		}
		for _, member := range members {
			account, err := s.teamRepo.ResolveAccount(member.UserID)
			if err != nil || account == nil || account.Provider != maildomain.ProviderGoogle {
				continue
			}
			if err := s.gmailService.Watch(ctx, account, s.topicName); err != nil {
				log.Printf("[PubSub] Failed to arm watch for %s: %v", account.Email, err)
			}
		}
	}
}

func (s *Service) handleMessage(ctx context.Context, msg *pubsub.Message) {
	var notification GmailNotification
	if err := json.Unmarshal(msg.Data, &notification); err != nil {
		log.Printf("[PubSub] Failed to unmarshal notification: %v", err)
		return
	}

	member, err := s.teamRepo.FindMemberByEmail(notification.EmailAddress)
	if err != nil {
		log.Printf("[PubSub] Error finding member by email %s: %v", notification.EmailAddress, err)
		return
	}
	if member == nil {
		log.Printf("[PubSub] No member found for email: %s", notification.EmailAddress)
		return
	}

	// Skip if we already processed this historyId for this user
	s.mu.Lock()
	lastHID, seen := s.lastHistoryID[member.UserID]
	if seen && notification.HistoryID <= lastHID {
		s.mu.Unlock()
		return
	}
	s.lastHistoryID[member.UserID] = notification.HistoryID
	s.mu.Unlock()

	log.Printf("[PubSub] Mailbox change for %s (historyId: %d), running targeted discovery", notification.EmailAddress, notification.HistoryID)
	s.discoverer.DiscoverMember(ctx, member.TeamID, member)
}
