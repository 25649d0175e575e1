package api

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/pchat/internal/bus"
	"github.com/matheus3301/pchat/internal/status"
	"github.com/matheus3301/pchat/internal/store"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name of the control API.
const ServiceName = "pchat.v1.ControlService"

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// ControlServer is the control API of a running client. Requests and
// responses are structpb.Struct documents.
type ControlServer interface {
	GetStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListMessages(context.Context, *structpb.Struct) (*structpb.Struct, error)
	InjectMessage(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SetTyping(context.Context, *structpb.Struct) (*structpb.Struct, error)
	WatchEvents(*structpb.Struct, grpc.ServerStream) error
}

// Ingestor stores records as if they had arrived from the network.
type Ingestor interface {
	IngestMessage(msg *store.Message) error
	LastMessageAt() int64
}

// Identity reports the signed-in user, or "" before sign-in.
type Identity interface {
	UserID() string
}

// ControlService implements ControlServer on top of the local store.
type ControlService struct {
	sessionName string
	startedAt   time.Time
	machine     *status.Machine
	db          *store.DB
	ingest      Ingestor
	identity    Identity
	bus         *bus.Bus
}

// NewControlService creates the control service of one session.
func NewControlService(sessionName string, machine *status.Machine, db *store.DB, ingest Ingestor, identity Identity, b *bus.Bus) *ControlService {
	return &ControlService{
		sessionName: sessionName,
		startedAt:   time.Now(),
		machine:     machine,
		db:          db,
		ingest:      ingest,
		identity:    identity,
		bus:         b,
	}
}

func (s *ControlService) GetStatus(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	current := s.machine.Current()
	resp := map[string]any{
		"session":   s.sessionName,
		"status":    string(current),
		"since_ms":  s.machine.Since().UnixMilli(),
		"uptime_ms": time.Since(s.startedAt).Milliseconds(),
		"user_id":   s.identity.UserID(),
	}
	if s.db != nil {
		if n, err := s.db.MessageCount(); err == nil {
			resp["message_count"] = n
		}
		if pending, err := s.db.PendingSync(maxListLimit); err == nil {
			resp["pending_count"] = len(pending)
		}
	}
	if s.ingest != nil {
		resp["last_message_at"] = s.ingest.LastMessageAt()
	}
	return newStruct(resp)
}

func (s *ControlService) ListMessages(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	chatID, err := requireString(req, "chat_id")
	if err != nil {
		return nil, err
	}
	limit := int(numberField(req, "limit"))
	if limit <= 0 {
		limit = defaultListLimit
	}
	limit = min(limit, maxListLimit)

	msgs, err := s.db.ListChatMessages(chatID)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "list messages: %v", err)
	}
	hasMore := len(msgs) > limit
	if hasMore {
		msgs = msgs[len(msgs)-limit:]
	}

	list := make([]any, 0, len(msgs))
	for i := range msgs {
		list = append(list, messageToMap(&msgs[i]))
	}
	return newStruct(map[string]any{"messages": list, "has_more": hasMore})
}

// InjectMessage stores a message as if a remote user had sent it.
func (s *ControlService) InjectMessage(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.ingest == nil {
		return nil, grpcstatus.Error(codes.Unavailable, "ingestion not available")
	}
	chatID, err := requireString(req, "chat_id")
	if err != nil {
		return nil, err
	}
	userID, err := requireString(req, "user_id")
	if err != nil {
		return nil, err
	}
	typ := stringField(req, "type")
	if typ == "" {
		typ = store.TypeText
	}
	switch typ {
	case store.TypeText, store.TypeEmoji, store.TypeLocation:
	default:
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "unsupported type %q", typ)
	}

	fullname := stringField(req, "user_fullname")
	m := &store.Message{
		ObjectID:     stringField(req, "object_id"),
		ChatID:       chatID,
		UserID:       userID,
		UserFullname: fullname,
		UserInitials: store.Initials(fullname),
		Type:         typ,
		Text:         stringField(req, "text"),
		Latitude:     numberField(req, "latitude"),
		Longitude:    numberField(req, "longitude"),
		CreatedAt:    int64(numberField(req, "created_at")),
	}
	if m.ObjectID == "" {
		m.ObjectID = uuid.NewString()
	}
	if err := s.ingest.IngestMessage(m); err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "inject message: %v", err)
	}
	return newStruct(map[string]any{"object_id": m.ObjectID})
}

// SetTyping sets the typing flag of a remote user.
func (s *ControlService) SetTyping(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	chatID, err := requireString(req, "chat_id")
	if err != nil {
		return nil, err
	}
	userID, err := requireString(req, "user_id")
	if err != nil {
		return nil, err
	}
	if userID == s.identity.UserID() {
		return nil, grpcstatus.Error(codes.FailedPrecondition, "cannot set the local user's typing state")
	}
	typing := boolField(req, "typing")
	if err := s.db.UpdateTyping(chatID, userID, typing); err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "set typing: %v", err)
	}
	return newStruct(map[string]any{"typing": typing})
}

// WatchEvents streams bus events whose kind starts with the requested
// prefix ("" streams everything) until the client goes away.
func (s *ControlService) WatchEvents(req *structpb.Struct, stream grpc.ServerStream) error {
	ch, unsub := s.bus.Subscribe(stringField(req, "prefix"), 64)
	defer unsub()

	for {
		select {
		case evt := <-ch:
			env, err := newStruct(map[string]any{
				"event_id":        uuid.New().String(),
				"session":         s.sessionName,
				"occurred_at_ms":  evt.Timestamp.UnixMilli(),
				"kind":            evt.Kind,
				"payload_version": 1,
				"payload":         payloadToValue(evt.Payload),
			})
			if err != nil {
				return err
			}
			if err := stream.SendMsg(env); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}

func messageToMap(m *store.Message) map[string]any {
	out := map[string]any{
		"object_id":     m.ObjectID,
		"chat_id":       m.ChatID,
		"user_id":       m.UserID,
		"user_fullname": m.UserFullname,
		"type":          m.Type,
		"created_at":    m.CreatedAt,
		"sync_required": m.SyncRequired,
	}
	if m.Text != "" {
		out["text"] = m.Text
	}
	if m.Type == store.TypeLocation {
		out["latitude"] = m.Latitude
		out["longitude"] = m.Longitude
	}
	if m.MediaKey != "" {
		out["media_key"] = m.MediaKey
	}
	return out
}

func payloadToValue(p any) any {
	switch v := p.(type) {
	case string:
		return v
	case map[string]string:
		out := make(map[string]any, len(v))
		for k, s := range v {
			out[k] = s
		}
		return out
	case map[string]int:
		out := make(map[string]any, len(v))
		for k, n := range v {
			out[k] = n
		}
		return out
	case status.StatusChange:
		return map[string]any{"from": string(v.From), "to": string(v.To)}
	case *store.Message:
		return messageToMap(v)
	case *store.Person:
		return map[string]any{"object_id": v.ObjectID, "fullname": v.Fullname}
	case *store.Action:
		return map[string]any{"chat_id": v.ChatID, "user_id": v.UserID, "typing": v.Typing, "last_read": v.LastRead}
	}
	return nil
}

func newStruct(m map[string]any) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "encode response: %v", err)
	}
	return s, nil
}

func stringField(s *structpb.Struct, key string) string {
	return strings.TrimSpace(s.GetFields()[key].GetStringValue())
}

func numberField(s *structpb.Struct, key string) float64 {
	return s.GetFields()[key].GetNumberValue()
}

func boolField(s *structpb.Struct, key string) bool {
	return s.GetFields()[key].GetBoolValue()
}

func requireString(s *structpb.Struct, key string) (string, error) {
	v := stringField(s, key)
	if v == "" {
		return "", grpcstatus.Errorf(codes.InvalidArgument, "%s is required", key)
	}
	return v, nil
}
