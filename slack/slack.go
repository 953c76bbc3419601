package slack

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/mempirate/delver/agent"
	"github.com/mempirate/delver/log"
)

// MENTION_REGEX matches Slack user mention tokens like <@U0123ABCD>.
const MENTION_REGEX = `<@[A-Z0-9]+>`

// MAX_CONCURRENT_RUNS bounds the research runs in flight. Further mentions
// get a busy reply.
const MAX_CONCURRENT_RUNS = 2

const (
	ReplyMissingTopic = "Mention me with a topic to research, e.g. `@delver latest developments in LangChain`."
	ReplyBusy         = "I'm at capacity right now, try again in a few minutes."
)

var mentionRegex = regexp.MustCompile(MENTION_REGEX)

// Bot is a socket-mode Slack bot. Mentioning it with a topic starts a
// research run; the finished report is uploaded to the mention's thread.
type Bot struct {
	log    zerolog.Logger
	client *socketmode.Client
	runner agent.RunFunc

	sem chan struct{}
}

func NewBot(appToken, botToken string, runner agent.RunFunc) *Bot {
	api := slack.New(
		botToken,
		slack.OptionAppLevelToken(appToken),
	)

	client := socketmode.New(api)

	return &Bot{
		log:    log.NewLogger("slack"),
		client: client,
		runner: runner,
		sem:    make(chan struct{}, MAX_CONCURRENT_RUNS),
	}
}

// Start connects to Slack and handles events until ctx is canceled.
func (b *Bot) Start(ctx context.Context) error {
	go func() {
		if err := b.client.RunContext(ctx); err != nil && ctx.Err() == nil {
			b.log.Error().Err(err).Msg("Socket mode connection closed")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-b.client.Events:
			if !ok {
				return nil
			}
			b.handleEvent(ctx, evt)
		}
	}
}

func (b *Bot) handleEvent(ctx context.Context, evt socketmode.Event) {
	switch evt.Type {
	case socketmode.EventTypeConnecting:
		b.log.Debug().Msg("Connecting to Slack with Socket Mode...")
	case socketmode.EventTypeConnectionError:
		b.log.Warn().Any("data", evt.Data).Msg("Connection failed. Retrying later...")
	case socketmode.EventTypeConnected:
		b.log.Info().Msg("Connected to Slack with Socket Mode")
	case socketmode.EventTypeEventsAPI:
		apiEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok {
			b.log.Warn().Msg("Ignored event")
			return
		}

		// Research runs take minutes; ack immediately so Slack doesn't
		// redeliver the event while we work.
		b.client.Ack(*evt.Request)

		b.onEvent(ctx, apiEvent)
	default:
		b.log.Trace().Str("type", string(evt.Type)).Msg("Ignored event")
	}
}

func (b *Bot) onEvent(ctx context.Context, event slackevents.EventsAPIEvent) {
	if event.Type != slackevents.CallbackEvent {
		return
	}

	switch ev := event.InnerEvent.Data.(type) {
	case *slackevents.AppMentionEvent:
		b.onAppMention(ctx, ev)
	default:
		b.log.Debug().Str("type", event.InnerEvent.Type).Msg("Unhandled callback event")
	}
}

func (b *Bot) onAppMention(ctx context.Context, event *slackevents.AppMentionEvent) {
	// Replies go to the mention's thread.
	threadID := event.TimeStamp

	topic := stripMentions(event.Text)
	if topic == "" {
		b.log.Debug().Str("text", event.Text).Msg("Ignoring mention without topic")
		b.post(event.Channel, threadID, ReplyMissingTopic)
		return
	}

	select {
	case b.sem <- struct{}{}:
	default:
		b.log.Info().Str("topic", topic).Msg("At capacity, rejecting research request")
		b.post(event.Channel, threadID, ReplyBusy)
		return
	}

	b.log.Info().Str("topic", topic).Str("ts", threadID).Msg("Research request received")
	b.post(event.Channel, threadID, fmt.Sprintf("On it! Researching *%s*, this can take a few minutes.", topic))

	go func() {
		defer func() { <-b.sem }()
		b.research(ctx, event.Channel, threadID, topic)
	}()
}

func (b *Bot) research(ctx context.Context, channel, threadID, topic string) {
	sink := func(ev agent.Event) {
		if ev.Kind == agent.KindPlanCreated {
			b.post(channel, threadID, "Research plan:\n• "+strings.Join(ev.Queries, "\n• "))
		}
	}

	result, err := b.runner(ctx, topic, sink)
	if err != nil {
		b.log.Error().Err(err).Str("topic", topic).Msg("Research run failed")
		b.post(channel, threadID, fmt.Sprintf("Research failed: %s", err))
		return
	}

	md, err := result.Report.Markdown()
	if err != nil {
		b.log.Error().Err(err).Msg("Failed to render report")
		b.post(channel, threadID, fmt.Sprintf("Research failed: %s", err))
		return
	}

	_, err = b.client.UploadFileV2(slack.UploadFileV2Parameters{
		Filename:        result.Report.FileName(),
		FileSize:        len(md),
		Content:         md,
		Title:           result.Report.Title(),
		Channel:         channel,
		ThreadTimestamp: threadID,
		InitialComment:  fmt.Sprintf("Here's what I found on *%s*.", topic),
	})
	if err != nil {
		b.log.Error().Err(err).Msg("Failed to upload report")
		b.post(channel, threadID, "The report is done but the upload failed, sorry.")
	}
}

func (b *Bot) post(channel, threadID, text string) {
	_, _, err := b.client.PostMessage(channel, slack.MsgOptionText(text, false), slack.MsgOptionTS(threadID))
	if err != nil {
		b.log.Error().Err(err).Str("channel", channel).Msg("Failed to post message")
	}
}

// stripMentions removes mention tokens from the message, leaving the topic.
func stripMentions(text string) string {
	return strings.TrimSpace(mentionRegex.ReplaceAllString(text, ""))
}
