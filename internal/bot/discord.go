package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/suPer8Hu/comet/internal/chat"
	"github.com/suPer8Hu/comet/internal/config"
)

const (
	threadAutoArchiveMinutes = 60
	threadSlowmodeSeconds    = 1
	eventTimeout             = 3 * time.Minute
)

// Discord connects the relay service and access admin to a Discord gateway session and
// implements Platform on top of it.
type Discord struct {
	session *discordgo.Session
	cfg     *config.Config
	relay   *Service
	admin   *AccessAdmin
	logger  *slog.Logger
	ctx     context.Context

	counts       *threadCounter
	fetchChannel func(ctx context.Context, channelID string) (*discordgo.Channel, error)
}

func NewDiscord(cfg *config.Config, relay *Service, admin *AccessAdmin, logger *slog.Logger) (*Discord, error) {
	if cfg.DiscordToken == "" {
		return nil, errors.New("discord: bot token is required")
	}
	s, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, err
	}
	s.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsMessageContent

	d := &Discord{session: s, cfg: cfg, relay: relay, admin: admin, logger: logger, ctx: context.Background(), counts: newThreadCounter()}
	d.fetchChannel = func(ctx context.Context, channelID string) (*discordgo.Channel, error) {
		return s.Channel(channelID, discordgo.WithContext(ctx))
	}
	relay.SetPlatform(d)

	s.AddHandler(d.onReady)
	s.AddHandler(d.onInteractionCreate)
	s.AddHandler(d.onMessageCreate)
	return d, nil
}

// Start opens the gateway connection. ctx bounds every handled event.
func (d *Discord) Start(ctx context.Context) error {
	d.ctx = ctx
	if err := d.session.Open(); err != nil {
		return fmt.Errorf("discord: open gateway: %w", err)
	}
	d.logger.Info("discord connected")
	return nil
}

func (d *Discord) Stop() {
	_ = d.session.Close()
	d.logger.Info("discord disconnected")
}

func (d *Discord) eventContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(d.ctx, eventTimeout)
}

func (d *Discord) onReady(s *discordgo.Session, r *discordgo.Ready) {
	cmds := applicationCommands(d.cfg)
	if _, err := s.ApplicationCommandBulkOverwrite(r.User.ID, "", cmds); err != nil {
		d.logger.Error("register commands failed", "err", err)
		return
	}
	d.logger.Info("commands registered", "user", r.User.Username, "count", len(cmds))
}

func modelChoices(models []config.ModelChoice) []*discordgo.ApplicationCommandOptionChoice {
	out := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(models))
	for _, m := range models {
		out = append(out, &discordgo.ApplicationCommandOptionChoice{Name: m.Name, Value: m.Value})
	}
	return out
}

func threadCommand(name string, models []config.ModelChoice, maxTemp float64, withSystem bool) *discordgo.ApplicationCommand {
	zero := 0.0
	opts := []*discordgo.ApplicationCommandOption{
		{Type: discordgo.ApplicationCommandOptionString, Name: "prompt", Description: "first message", Required: true},
		{Type: discordgo.ApplicationCommandOptionInteger, Name: "model", Description: "model", Required: true, Choices: modelChoices(models)},
	}
	if withSystem {
		opts = append(opts, &discordgo.ApplicationCommandOption{
			Type: discordgo.ApplicationCommandOptionString, Name: "sys_prompt", Description: "system prompt",
		})
	}
	opts = append(opts,
		&discordgo.ApplicationCommandOption{
			Type: discordgo.ApplicationCommandOptionNumber, Name: "temperature", Description: "sampling temperature",
			MinValue: &zero, MaxValue: maxTemp,
		},
		&discordgo.ApplicationCommandOption{
			Type: discordgo.ApplicationCommandOptionNumber, Name: "top_p", Description: "nucleus sampling",
			MinValue: &zero, MaxValue: 1,
		},
	)
	return &discordgo.ApplicationCommand{
		Name:        name,
		Description: "Create a thread and start a chat with the assistant",
		Options:     opts,
	}
}

func accessCommand(name, description string) *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        name,
		Description: description,
		Options: []*discordgo.ApplicationCommandOption{
			{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "target user", Required: true},
		},
	}
}

func applicationCommands(cfg *config.Config) []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		threadCommand(string(CommandGPT), cfg.GPT.Models, 2, false),
		threadCommand(string(CommandChat), cfg.ChatModels, 2, false),
		threadCommand(string(CommandClaude), cfg.Claude.Models, 1, true),
		accessCommand("add_access", "Add an access type to the user"),
		accessCommand("rm_access", "Remove an access type from the user"),
		accessCommand("check_access", "Check the access type of the user"),
	}
}

func parseID(s string) int64 {
	id, _ := strconv.ParseInt(s, 10, 64)
	return id
}

func interactionUser(i *discordgo.InteractionCreate) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	return i.User
}

func (d *Discord) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("panic in interaction handler", "panic", r)
		}
	}()
	user := interactionUser(i)
	if user == nil {
		return
	}
	caller := Caller{GuildID: parseID(i.GuildID), UserID: parseID(user.ID)}

	ctx, cancel := d.eventContext()
	defer cancel()

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		d.handleCommand(ctx, s, i, caller, user)
	case discordgo.InteractionMessageComponent:
		data := i.MessageComponentData()
		if !IsAccessMenuID(data.CustomID) || len(data.Values) == 0 {
			return
		}
		text, err := d.admin.Apply(ctx, caller, data.CustomID, data.Values[0])
		if err != nil {
			d.logger.Warn("access change rejected", "custom_id", data.CustomID, "err", err)
		}
		d.replyEphemeral(s, i, text, nil)
	}
}

func (d *Discord) handleCommand(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, caller Caller, user *discordgo.User) {
	data := i.ApplicationCommandData()
	opts := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(data.Options))
	for _, o := range data.Options {
		opts[o.Name] = o
	}

	switch data.Name {
	case string(CommandGPT), string(CommandChat), string(CommandClaude):
		req := StartRequest{Command: Command(data.Name), Caller: caller, UserName: user.Username}
		if o, ok := opts["prompt"]; ok {
			req.Prompt = o.StringValue()
		}
		if o, ok := opts["model"]; ok {
			req.Model = int(o.IntValue())
		}
		if o, ok := opts["temperature"]; ok {
			v := o.FloatValue()
			req.Temperature = &v
		}
		if o, ok := opts["top_p"]; ok {
			v := o.FloatValue()
			req.TopP = &v
		}
		if o, ok := opts["sys_prompt"]; ok {
			v := o.StringValue()
			req.SystemPrompt = &v
		}
		resp := &interactionResponder{s: s, i: i}
		if err := d.relay.StartThread(ctx, req, resp); err != nil && !errors.Is(err, ErrValidation) && !errors.Is(err, ErrPermission) {
			d.logger.Error("command failed", "command", data.Name, "err", err)
		}

	case "add_access", "rm_access", "check_access":
		op := map[string]AccessOp{"add_access": AccessAdd, "rm_access": AccessRemove, "check_access": AccessCheck}[data.Name]
		o, ok := opts["user"]
		if !ok {
			return
		}
		target := o.UserValue(nil)
		member := false
		if target != nil && i.GuildID != "" {
			if _, err := s.GuildMember(i.GuildID, target.ID, discordgo.WithContext(ctx)); err == nil {
				member = true
			}
		}
		var targetID int64
		if target != nil {
			targetID = parseID(target.ID)
		}
		reply, err := d.admin.Begin(ctx, caller, op, targetID, member)
		if err != nil {
			d.logger.Warn("access command rejected", "command", data.Name, "err", err)
		}
		d.replyEphemeral(s, i, reply.Text, reply.Menu)
	}
}

func (d *Discord) replyEphemeral(s *discordgo.Session, i *discordgo.InteractionCreate, text string, menu *AccessMenu) {
	resp := &discordgo.InteractionResponseData{Content: text, Flags: discordgo.MessageFlagsEphemeral}
	if menu != nil {
		one := 1
		options := make([]discordgo.SelectMenuOption, 0, len(menu.Options))
		for _, t := range menu.Options {
			options = append(options, discordgo.SelectMenuOption{Label: string(t), Value: string(t)})
		}
		resp.Components = []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.SelectMenu{
					CustomID:    menu.CustomID,
					Placeholder: menu.Placeholder,
					MinValues:   &one,
					MaxValues:   1,
					Options:     options,
				},
			}},
		}
	}
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: resp,
	})
	if err != nil {
		d.logger.Error("interaction respond failed", "err", err)
	}
}

func (d *Discord) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	ctx, cancel := d.eventContext()
	defer cancel()

	msg, ok := d.incoming(ctx, s.State, m)
	if !ok {
		return
	}
	if err := d.relay.HandleMessage(ctx, msg); err != nil {
		d.logger.Error("message handling failed", "channel_id", m.ChannelID, "err", err)
	}
}

// incoming builds the relay view of a gateway message. Messages from the bot itself only
// advance the thread counter.
func (d *Discord) incoming(ctx context.Context, st *discordgo.State, m *discordgo.MessageCreate) (IncomingMessage, bool) {
	if m.Author == nil {
		return IncomingMessage{}, false
	}
	selfID := ""
	if st.User != nil {
		selfID = st.User.ID
	}
	if selfID != "" && m.Author.ID == selfID {
		d.counts.bump(m.ChannelID)
		return IncomingMessage{}, false
	}

	ch, err := st.Channel(m.ChannelID)
	if err != nil {
		if ch, err = d.fetchChannel(ctx, m.ChannelID); err != nil {
			d.logger.Debug("channel lookup failed", "channel_id", m.ChannelID, "err", err)
			return IncomingMessage{}, false
		}
	}
	msg := IncomingMessage{
		ChannelID:    ch.ID,
		InThread:     ch.IsThread(),
		ThreadName:   ch.Name,
		BotOwned:     selfID != "" && ch.OwnerID == selfID,
		MessageCount: ch.MessageCount,
		AuthorID:     parseID(m.Author.ID),
		Content:      m.Content,
	}
	if ch.ThreadMetadata != nil {
		msg.Archived = ch.ThreadMetadata.Archived
		msg.Locked = ch.ThreadMetadata.Locked
	}

	if msg.InThread && msg.BotOwned && d.relay.RelaysThread(ch.Name) {
		n, err := d.counts.observe(ch.ID, func() (int, error) {
			fresh, err := d.fetchChannel(ctx, ch.ID)
			if err != nil {
				return 0, err
			}
			return fresh.MessageCount, nil
		})
		if err != nil {
			d.logger.Warn("message count refresh failed", "channel_id", ch.ID, "err", err)
			return IncomingMessage{}, false
		}
		msg.MessageCount = n
	}
	return msg, true
}

func noticeEmbed(n Notice) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{Description: n.Text, Color: n.Color}
}

func (d *Discord) Send(ctx context.Context, threadID, text string) error {
	_, err := d.session.ChannelMessageSend(threadID, text, discordgo.WithContext(ctx))
	return err
}

func (d *Discord) Notify(ctx context.Context, threadID string, n Notice) error {
	_, err := d.session.ChannelMessageSendEmbed(threadID, noticeEmbed(n), discordgo.WithContext(ctx))
	return err
}

func (d *Discord) Typing(ctx context.Context, threadID string) error {
	return d.session.ChannelTyping(threadID, discordgo.WithContext(ctx))
}

func (d *Discord) History(ctx context.Context, threadID string, limit int) ([]chat.PlatformMessage, error) {
	if limit > 100 {
		limit = 100
	}
	msgs, err := d.session.ChannelMessages(threadID, limit, "", "", "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	out := make([]chat.PlatformMessage, 0, len(msgs))
	for _, m := range msgs {
		pm := chat.PlatformMessage{Content: m.Content}
		if m.Author != nil {
			pm.AuthorName = m.Author.Username
		}
		if m.Type == discordgo.MessageTypeThreadStarterMessage {
			pm.ThreadStarter = true
			if ref := m.ReferencedMessage; ref != nil && len(ref.Embeds) > 0 {
				for _, f := range ref.Embeds[0].Fields {
					pm.StarterFields = append(pm.StarterFields, chat.EmbedField{Name: f.Name, Value: f.Value})
				}
			}
		}
		out = append(out, pm)
	}
	return out, nil
}

func (d *Discord) Close(ctx context.Context, threadID string) error {
	d.counts.forget(threadID)
	yes := true
	_, err := d.session.ChannelEditComplex(threadID, &discordgo.ChannelEdit{Locked: &yes, Archived: &yes}, discordgo.WithContext(ctx))
	return err
}

// interactionResponder answers a slash command through its interaction token. Once
// deferred, answers edit the acknowledged response instead of creating one.
type interactionResponder struct {
	s        *discordgo.Session
	i        *discordgo.InteractionCreate
	deferred bool
}

func (r *interactionResponder) Defer(ctx context.Context) error {
	err := r.s.InteractionRespond(r.i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return err
	}
	r.deferred = true
	return nil
}

func (r *interactionResponder) Reply(ctx context.Context, text string) error {
	if r.deferred {
		// a deferred response is public; drop it and answer with an ephemeral followup
		if err := r.s.InteractionResponseDelete(r.i.Interaction, discordgo.WithContext(ctx)); err != nil {
			return err
		}
		_, err := r.s.FollowupMessageCreate(r.i.Interaction, true, &discordgo.WebhookParams{
			Content: text,
			Flags:   discordgo.MessageFlagsEphemeral,
		}, discordgo.WithContext(ctx))
		return err
	}
	return r.s.InteractionRespond(r.i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: text, Flags: discordgo.MessageFlagsEphemeral},
	}, discordgo.WithContext(ctx))
}

func (r *interactionResponder) Notify(ctx context.Context, n Notice) error {
	_, err := r.respondEmbed(ctx, noticeEmbed(n))
	return err
}

// respondEmbed answers with a single public embed and returns the resulting message when
// the answer went through an edit.
func (r *interactionResponder) respondEmbed(ctx context.Context, embed *discordgo.MessageEmbed) (*discordgo.Message, error) {
	embeds := []*discordgo.MessageEmbed{embed}
	if r.deferred {
		return r.s.InteractionResponseEdit(r.i.Interaction, &discordgo.WebhookEdit{Embeds: &embeds}, discordgo.WithContext(ctx))
	}
	err := r.s.InteractionRespond(r.i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Embeds: embeds},
	}, discordgo.WithContext(ctx))
	return nil, err
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func (r *interactionResponder) OpenThread(ctx context.Context, start StartEmbed, name string) (string, error) {
	embed := &discordgo.MessageEmbed{
		Description: fmt.Sprintf("<@%d> initiated the chat!", start.UserID),
		Color:       ColorGold,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "model", Value: start.Model, Inline: true},
			{Name: "temperature", Value: formatFloat(start.Temperature), Inline: true},
			{Name: "top_p", Value: formatFloat(start.TopP), Inline: true},
			{Name: "message", Value: start.Prompt},
		},
	}
	msg, err := r.respondEmbed(ctx, embed)
	if err != nil {
		return "", err
	}
	if msg == nil {
		if msg, err = r.s.InteractionResponse(r.i.Interaction, discordgo.WithContext(ctx)); err != nil {
			return "", err
		}
	}
	th, err := r.s.MessageThreadStartComplex(msg.ChannelID, msg.ID, &discordgo.ThreadStart{
		Name:                name,
		AutoArchiveDuration: threadAutoArchiveMinutes,
		RateLimitPerUser:    threadSlowmodeSeconds,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", err
	}
	return th.ID, nil
}

var _ Platform = (*Discord)(nil)
