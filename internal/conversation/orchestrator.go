// Package conversation implements the orchestration engine: per inbound
// message it classifies intent, feeds the result into the dialog profile,
// converses, detects a search trigger, runs the movie search, folds the
// result back into the dialog, and produces the final reply.
package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/cinechat/cinechat/internal/classifier"
	"github.com/cinechat/cinechat/internal/dialog"
	"github.com/cinechat/cinechat/internal/moviedb"
	"github.com/cinechat/cinechat/internal/observability/metrics"
	"github.com/cinechat/cinechat/pkg/logging"
)

var tracer = otel.Tracer("cinechat.internal.conversation")

// Prompts the orchestrator feeds back into the dialog after a search or a
// movie selection. The dialog engine branches on these exact strings.
const (
	PromptMovieSelected  = "USER CLICKS BOX"
	PromptMoviesReturned = "UPDATE NUM_MOVIES"
	PromptCurrentIndex   = "UPDATE CURRENT_INDEX"
)

// Channel identifies which transport a turn arrived on.
type Channel string

const (
	ChannelHTTP Channel = "http"
	ChannelSMS  Channel = "sms"
)

// DialogService is the remote dialog engine at our boundary.
type DialogService interface {
	Converse(ctx context.Context, conv *dialog.Conversation) (*dialog.Conversation, error)
	UpdateProfile(ctx context.Context, profile dialog.ProfileUpdate) error
}

// IntentClassifier ranks intents for an utterance.
type IntentClassifier interface {
	Classify(ctx context.Context, text string) (*classifier.Result, error)
}

// MovieService is the movie-metadata lookup at our boundary.
type MovieService interface {
	SearchMovies(ctx context.Context, params map[string]any) (*moviedb.SearchResult, error)
	GetMovieInformation(ctx context.Context, query map[string]string) (*moviedb.Movie, error)
}

// OutboundReply is one message headed back out over SMS.
type OutboundReply struct {
	To   string
	From string
	Body string
}

// ReplyMessenger delivers an OutboundReply. Fire-and-forget: the orchestrator
// logs failures but never fails a turn on them.
type ReplyMessenger interface {
	SendReply(ctx context.Context, reply OutboundReply) error
}

// Result is the terminal state of one orchestrated turn.
type Result struct {
	// Conversation is the dialog's final view of the session for this turn.
	Conversation *dialog.Conversation
	// Search holds the movie search result when the turn triggered one.
	Search *moviedb.SearchResult
	// Message is the user-facing line selected from the final reply.
	Message string
	// Searched reports whether the search branch ran.
	Searched bool
	// FirstContact reports an SMS turn that allocated a brand-new session;
	// the reply is the dialog's greeting and no classification ran.
	FirstContact bool
}

// Payload renders the channel-facing JSON object: the conversation, with
// every search-result field shallow-merged on top when a search ran.
func (r *Result) Payload() (map[string]any, error) {
	merged, err := toMap(r.Conversation)
	if err != nil {
		return nil, fmt.Errorf("conversation: failed to encode payload: %w", err)
	}
	if r.Search != nil {
		overlay, err := toMap(r.Search)
		if err != nil {
			return nil, fmt.Errorf("conversation: failed to encode search result: %w", err)
		}
		for k, v := range overlay {
			merged[k] = v
		}
	}
	return merged, nil
}

func toMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Orchestrator drives the per-turn pipeline over the remote collaborators.
// It holds no per-session state of its own; the SessionStore (SMS) or the
// caller (HTTP) is the session's custodian.
type Orchestrator struct {
	dialog     DialogService
	classifier IntentClassifier
	movies     MovieService
	sessions   SessionStore
	logger     *logging.Logger
	metrics    *metrics.TurnMetrics
}

// NewOrchestrator wires the orchestrator over its collaborators.
func NewOrchestrator(dlg DialogService, cls IntentClassifier, movies MovieService, sessions SessionStore, logger *logging.Logger, m *metrics.TurnMetrics) *Orchestrator {
	if dlg == nil {
		panic("conversation: dialog service cannot be nil")
	}
	if cls == nil {
		panic("conversation: classifier cannot be nil")
	}
	if movies == nil {
		panic("conversation: movie service cannot be nil")
	}
	if sessions == nil {
		sessions = NewMemoryStore()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Orchestrator{
		dialog:     dlg,
		classifier: cls,
		movies:     movies,
		sessions:   sessions,
		logger:     logger,
		metrics:    m,
	}
}

// CreateConversation asks the dialog service to allocate a thread seeded with
// the given fields and returns the allocation verbatim.
func (o *Orchestrator) CreateConversation(ctx context.Context, seed *dialog.Conversation) (*dialog.Conversation, error) {
	return o.dialog.Converse(ctx, seed)
}

// ProcessTurn runs steps classify through merge for one inbound message. The
// caller owns the session; conv.Input must carry the turn's utterance.
func (o *Orchestrator) ProcessTurn(ctx context.Context, session *dialog.Conversation, channel Channel) (_ *Result, err error) {
	ctx, span := tracer.Start(ctx, "conversation.turn")
	defer span.End()
	span.SetAttributes(
		attribute.String("cinechat.channel", string(channel)),
		attribute.String("cinechat.client_id", session.ClientID),
	)

	start := time.Now()
	defer func() {
		o.metrics.ObserveTurnLatency(string(channel), time.Since(start).Seconds())
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		o.metrics.ObserveTurn(string(channel), outcome)
	}()

	o.logger.Debug("classifying user intent", "input", session.Input)
	o.classifyAndEnrich(ctx, session)

	o.logger.Debug("advancing the dialog")
	conv, err := o.dialog.Converse(ctx, session)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if !ShouldSearch(conv.Response) {
		o.logger.Debug("not enough information to search, continuing the conversation")
		return &Result{
			Conversation: conv,
			Message:      FirstNonEmptyLine(conv.Response),
		}, nil
	}

	o.logger.Debug("dialog has enough information to search for movies")
	o.metrics.ObserveSearch()
	result, err := o.search(ctx, session, conv)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return result, nil
}

// classifyAndEnrich runs the classifier and pushes the top two classes into
// the dialog profile. Failure here is non-fatal: the turn proceeds without
// the enrichment, it just loses the classification signal.
func (o *Orchestrator) classifyAndEnrich(ctx context.Context, session *dialog.Conversation) {
	result, err := o.classifier.Classify(ctx, session.Input)
	if err != nil {
		o.metrics.ObserveClassificationFailure()
		o.logger.Warn("classification failed, continuing without intent", "error", err)
		return
	}
	if len(result.Classes) == 0 {
		o.metrics.ObserveClassificationFailure()
		o.logger.Warn("classifier returned no classes, continuing without intent")
		return
	}

	nameValues := make([]dialog.NameValue, 0, 4)
	for i, class := range result.Classes {
		if i == 2 {
			break
		}
		nameValues = append(nameValues,
			dialog.NameValue{Name: fmt.Sprintf("Class%d", i+1), Value: class.ClassName},
			dialog.NameValue{Name: fmt.Sprintf("Class%d_Confidence", i+1), Value: class.Confidence},
		)
	}

	o.logger.Debug("updating the dialog profile with the user intent", "top_class", result.Classes[0].ClassName)
	if err := o.dialog.UpdateProfile(ctx, dialog.ProfileUpdate{
		ClientID:   session.ClientID,
		NameValues: nameValues,
	}); err != nil {
		o.logger.Warn("profile update failed, continuing without intent", "error", err)
	}
}

// search runs steps parse through re-converse. conv is the dialog reply that
// carried the trigger; its line sequence is truncated to the first line so the
// trigger payload never reaches the user.
func (o *Orchestrator) search(ctx context.Context, session, conv *dialog.Conversation) (*Result, error) {
	params, err := ParseSearchParameters(conv.Response)
	if err != nil {
		return nil, err
	}
	if len(conv.Response) > 1 {
		conv.Response = conv.Response[:1]
	}

	o.logger.Debug("searching for movies", "page", params.Page())
	searchResult, err := o.movies.SearchMovies(ctx, params)
	if err != nil {
		return nil, err
	}

	o.logger.Debug("updating the dialog profile with the search result",
		"total_movies", searchResult.TotalMovies,
	)
	err = o.dialog.UpdateProfile(ctx, dialog.ProfileUpdate{
		ClientID: session.ClientID,
		NameValues: []dialog.NameValue{
			{Name: "Current_Index", Value: searchResult.CurrentIndex},
			{Name: "Total_Pages", Value: searchResult.TotalPages},
			{Name: "Num_Movies", Value: searchResult.TotalMovies},
		},
	})
	if err != nil {
		return nil, err
	}

	followUp := *session
	if page := params.Page(); page == "new" || page == "repeat" {
		followUp.Input = PromptMoviesReturned
	} else {
		followUp.Input = PromptCurrentIndex
	}

	o.logger.Debug("advancing the dialog with the search outcome", "prompt", followUp.Input)
	final, err := o.dialog.Converse(ctx, &followUp)
	if err != nil {
		return nil, err
	}

	return &Result{
		Conversation: final,
		Search:       searchResult,
		Message:      FirstNonEmptyLine(final.Response),
		Searched:     true,
	}, nil
}

// ProcessSMS handles one inbound SMS turn for the given identity, creating the
// session on first contact. The per-identity lock serializes the session's
// read-modify-write across the whole turn.
func (o *Orchestrator) ProcessSMS(ctx context.Context, identity, input string) (*Result, error) {
	unlock := o.sessions.Lock(identity)
	defer unlock()

	session, ok := o.sessions.Get(identity)
	if !ok {
		o.logger.Info("allocating a new session", "identity", identity)
		allocated, err := o.dialog.Converse(ctx, &dialog.Conversation{})
		if err != nil {
			o.metrics.ObserveTurn(string(ChannelSMS), "error")
			return nil, err
		}
		o.sessions.Put(identity, allocated)

		o.metrics.ObserveTurn(string(ChannelSMS), "ok")
		greeting := ""
		if len(allocated.Response) > 0 {
			greeting = allocated.Response[0]
		}
		return &Result{
			Conversation: allocated,
			Message:      greeting,
			FirstContact: true,
		}, nil
	}

	session.Input = input
	result, err := o.ProcessTurn(ctx, session, ChannelSMS)
	if err != nil {
		return nil, err
	}

	// Carry the dialog's latest view forward; identifiers stay stable for the
	// conversation's lifetime.
	session.ConversationID = result.Conversation.ConversationID
	session.Response = result.Conversation.Response
	o.sessions.Put(identity, session)

	return result, nil
}

// SelectMovie handles a movie-detail selection: fetch the movie, fold it into
// the profile, advance the dialog with the selection prompt, and return the
// reply merged with the movie.
func (o *Orchestrator) SelectMovie(ctx context.Context, query map[string]string) (map[string]any, error) {
	ctx, span := tracer.Start(ctx, "conversation.select_movie")
	defer span.End()

	movie, err := o.movies.GetMovieInformation(ctx, query)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	err = o.dialog.UpdateProfile(ctx, dialog.ProfileUpdate{
		ClientID: query["client_id"],
		NameValues: []dialog.NameValue{
			{Name: "Selected_Movie", Value: movie.MovieName},
			{Name: "Popularity_Score", Value: movie.Popularity * 10},
		},
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	conv, err := o.dialog.Converse(ctx, &dialog.Conversation{
		ClientID:       query["client_id"],
		ConversationID: query["conversation_id"],
		Input:          PromptMovieSelected,
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	payload, err := toMap(conv)
	if err != nil {
		return nil, fmt.Errorf("conversation: failed to encode payload: %w", err)
	}
	payload["movies"] = []*moviedb.Movie{movie}
	return payload, nil
}
