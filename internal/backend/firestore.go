package backend

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"ghosthq/internal/model"
)

// Firestore collection names
const (
	chatCollection     = "chat"
	eventsCollection   = "events"
	evidenceCollection = "evidence"
	statusCollection   = "status"
	usersCollection    = "users"
)

type chatDoc struct {
	UserID      string    `firestore:"userId"`
	Text        string    `firestore:"text"`
	IsCommand   bool      `firestore:"isCommand"`
	DisplayName string    `firestore:"displayName,omitempty"`
	PhotoURL    string    `firestore:"photoUrl,omitempty"`
	Timestamp   time.Time `firestore:"timestamp,serverTimestamp"`
}

type eventDoc struct {
	Type        string    `firestore:"type"`
	Intensity   int       `firestore:"intensity"`
	Message     string    `firestore:"message"`
	TriggeredBy *string   `firestore:"triggeredBy"`
	Timestamp   time.Time `firestore:"timestamp,serverTimestamp"`
}

type evidenceDoc struct {
	UserID      string    `firestore:"userId"`
	Evidence    string    `firestore:"evidence"`
	DisplayName string    `firestore:"displayName,omitempty"`
	Timestamp   time.Time `firestore:"timestamp,serverTimestamp"`
}

type statusDoc struct {
	UserID      string    `firestore:"userId"`
	IsDead      bool      `firestore:"isDead"`
	Map         *string   `firestore:"map"`
	Location    *string   `firestore:"location"`
	DisplayName *string   `firestore:"displayName"`
	PhotoURL    *string   `firestore:"photoUrl"`
	Timestamp   time.Time `firestore:"timestamp"`
}

// Firestore keeps squad state in a Firestore project and streams changes
// through snapshot listeners.
type Firestore struct {
	client *firestore.Client
	logger *log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ Backend = (*Firestore)(nil)

// NewFirestore connects to projectID. credentialsFile may be empty to use
// application default credentials or FIRESTORE_EMULATOR_HOST.
func NewFirestore(ctx context.Context, projectID, credentialsFile string, logger *log.Logger) (*Firestore, error) {
	if projectID == "" {
		return nil, errors.New("firestore project id is required")
	}
	if logger == nil {
		logger = log.Default()
	}

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	return &Firestore{
		client: client,
		logger: logger,
		ctx:    watchCtx,
		cancel: cancel,
	}, nil
}

func (f *Firestore) Name() string { return "firestore" }

func (f *Firestore) SaveProfile(ctx context.Context, u model.User) error {
	data := map[string]any{
		"displayName": u.DisplayName,
		"lastSeen":    firestore.ServerTimestamp,
	}
	if u.PhotoURL != "" {
		data["photoUrl"] = u.PhotoURL
	}
	_, err := f.client.Collection(usersCollection).Doc(u.ID).Set(ctx, data, firestore.MergeAll)
	return f.wrap("saving profile", err)
}

func (f *Firestore) SendMessage(ctx context.Context, msg model.ChatMessage) error {
	_, _, err := f.client.Collection(chatCollection).Add(ctx, chatDoc{
		UserID:      msg.UserID,
		Text:        msg.Text,
		IsCommand:   msg.IsCommand,
		DisplayName: msg.DisplayName,
		PhotoURL:    msg.PhotoURL,
	})
	return f.wrap("sending message", err)
}

func (f *Firestore) TriggerEvent(ctx context.Context, event model.GhostEvent) error {
	_, _, err := f.client.Collection(eventsCollection).Add(ctx, eventDoc{
		Type:        string(event.Type),
		Intensity:   event.Intensity,
		Message:     event.Message,
		TriggeredBy: event.TriggeredBy,
	})
	return f.wrap("triggering event", err)
}

// UpdateStatus merges the set fields of upd into status/<userId>.
func (f *Firestore) UpdateStatus(ctx context.Context, upd model.SquadStatusUpdate) error {
	_, err := f.client.Collection(statusCollection).Doc(upd.UserID).Set(ctx, statusFields(upd), firestore.MergeAll)
	return f.wrap("updating status", err)
}

func (f *Firestore) SaveEvidence(ctx context.Context, ev model.Evidence) error {
	_, _, err := f.client.Collection(evidenceCollection).Add(ctx, evidenceDoc{
		UserID:      ev.UserID,
		Evidence:    ev.Evidence,
		DisplayName: ev.DisplayName,
	})
	return f.wrap("saving evidence", err)
}

// ClearEvidence deletes every evidence document.
func (f *Firestore) ClearEvidence(ctx context.Context) error {
	it := f.client.Collection(evidenceCollection).DocumentRefs(ctx)
	for {
		ref, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return f.wrap("listing evidence", err)
		}
		if _, err := ref.Delete(ctx); err != nil {
			return f.wrap("clearing evidence", err)
		}
	}
}

// OnChat streams the latest ChatLimit messages, oldest first.
func (f *Firestore) OnChat(fn func([]model.ChatMessage)) func() {
	q := f.client.Collection(chatCollection).OrderBy("timestamp", firestore.Desc).Limit(ChatLimit)
	return f.watch(q, chatCollection, func(snap *firestore.QuerySnapshot) error {
		docs, err := snap.Documents.GetAll()
		if err != nil {
			return err
		}
		msgs := make([]model.ChatMessage, 0, len(docs))
		for i := len(docs) - 1; i >= 0; i-- {
			var d chatDoc
			if err := docs[i].DataTo(&d); err != nil {
				f.logger.Printf("[Firestore] ⚠️  Skipping chat %s: %v", docs[i].Ref.ID, err)
				continue
			}
			msgs = append(msgs, model.ChatMessage{
				ID:          docs[i].Ref.ID,
				UserID:      d.UserID,
				Text:        d.Text,
				IsCommand:   d.IsCommand,
				DisplayName: d.DisplayName,
				PhotoURL:    d.PhotoURL,
				Timestamp:   d.Timestamp,
			})
		}
		fn(msgs)
		return nil
	})
}

// OnEvent fires once per newly added event, starting with the latest one.
func (f *Firestore) OnEvent(fn func(model.GhostEvent)) func() {
	q := f.client.Collection(eventsCollection).OrderBy("timestamp", firestore.Desc).Limit(1)
	return f.watch(q, eventsCollection, func(snap *firestore.QuerySnapshot) error {
		for _, change := range snap.Changes {
			if change.Kind != firestore.DocumentAdded {
				continue
			}
			var d eventDoc
			if err := change.Doc.DataTo(&d); err != nil {
				f.logger.Printf("[Firestore] ⚠️  Skipping event %s: %v", change.Doc.Ref.ID, err)
				continue
			}
			fn(model.GhostEvent{
				ID:          change.Doc.Ref.ID,
				Type:        model.EventType(d.Type),
				Intensity:   d.Intensity,
				Message:     d.Message,
				TriggeredBy: d.TriggeredBy,
				Timestamp:   d.Timestamp,
			})
		}
		return nil
	})
}

// OnStatus streams the whole squad.
func (f *Firestore) OnStatus(fn func([]model.SquadStatus)) func() {
	q := f.client.Collection(statusCollection).Query
	return f.watch(q, statusCollection, func(snap *firestore.QuerySnapshot) error {
		docs, err := snap.Documents.GetAll()
		if err != nil {
			return err
		}
		rows := make([]model.SquadStatus, 0, len(docs))
		for _, doc := range docs {
			var d statusDoc
			if err := doc.DataTo(&d); err != nil {
				f.logger.Printf("[Firestore] ⚠️  Skipping status %s: %v", doc.Ref.ID, err)
				continue
			}
			rows = append(rows, model.SquadStatus{
				ID:          doc.Ref.ID,
				UserID:      d.UserID,
				IsDead:      d.IsDead,
				Map:         d.Map,
				Location:    d.Location,
				DisplayName: d.DisplayName,
				PhotoURL:    d.PhotoURL,
				Timestamp:   d.Timestamp,
			})
		}
		fn(rows)
		return nil
	})
}

// OnEvidence streams the whole evidence list, oldest first.
func (f *Firestore) OnEvidence(fn func([]model.Evidence)) func() {
	q := f.client.Collection(evidenceCollection).OrderBy("timestamp", firestore.Asc)
	return f.watch(q, evidenceCollection, func(snap *firestore.QuerySnapshot) error {
		docs, err := snap.Documents.GetAll()
		if err != nil {
			return err
		}
		items := make([]model.Evidence, 0, len(docs))
		for _, doc := range docs {
			var d evidenceDoc
			if err := doc.DataTo(&d); err != nil {
				f.logger.Printf("[Firestore] ⚠️  Skipping evidence %s: %v", doc.Ref.ID, err)
				continue
			}
			items = append(items, model.Evidence{
				ID:          doc.Ref.ID,
				UserID:      d.UserID,
				Evidence:    d.Evidence,
				DisplayName: d.DisplayName,
				Timestamp:   d.Timestamp,
			})
		}
		fn(items)
		return nil
	})
}

// Close stops every listener and closes the client.
func (f *Firestore) Close() error {
	f.cancel()
	f.wg.Wait()
	return f.client.Close()
}

// watch runs a snapshot listener on q until it is cancelled or fails.
func (f *Firestore) watch(q firestore.Query, name string, handle func(*firestore.QuerySnapshot) error) func() {
	ctx, cancel := context.WithCancel(f.ctx)

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		it := q.Snapshots(ctx)
		defer it.Stop()

		for {
			snap, err := it.Next()
			if err == nil {
				err = handle(snap)
			}
			if err != nil {
				if ctx.Err() == nil {
					f.logWatchError(name, err)
				}
				return
			}
		}
	}()

	return cancel
}

func (f *Firestore) logWatchError(name string, err error) {
	switch {
	case status.Code(err) == codes.Canceled:
	case transient(err):
		f.logger.Printf("[Firestore] ⚠️  Transient error on %s listener: %v", name, err)
	default:
		f.logger.Printf("[Firestore] ❌ %s listener stopped: %v", name, err)
	}
}

func (f *Firestore) wrap(action string, err error) error {
	if err == nil {
		return nil
	}
	if transient(err) {
		f.logger.Printf("[Firestore] ⚠️  Transient error %s: %v", action, err)
	}
	return fmt.Errorf("%s: %w", action, err)
}

func transient(err error) bool {
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unavailable, codes.DeadlineExceeded:
		return true
	}
	return false
}

// statusFields lists only the fields upd sets, plus the server timestamp.
func statusFields(upd model.SquadStatusUpdate) map[string]any {
	fields := map[string]any{
		"userId":    upd.UserID,
		"timestamp": firestore.ServerTimestamp,
	}
	if upd.IsDead != nil {
		fields["isDead"] = *upd.IsDead
	}
	if upd.Map != nil {
		fields["map"] = *upd.Map
	}
	if upd.Location != nil {
		fields["location"] = *upd.Location
	}
	if upd.DisplayName != nil {
		fields["displayName"] = *upd.DisplayName
	}
	if upd.PhotoURL != nil {
		fields["photoUrl"] = *upd.PhotoURL
	}
	return fields
}
