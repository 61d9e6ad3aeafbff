package command

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/gramlink/internal/diagnostics"
	"github.com/hitoshi/gramlink/internal/model"
)

// CreateChannel はチャンネルを作成する。
// タイトルと説明はマークアップ除去後に長さを検証する。
func (s *Service) CreateChannel(ctx context.Context, sess *model.Session, title, description string) (result *model.CommandResult) {
	const op = "channels.create"
	defer s.recoverCommand(sess, op, &result)

	title = s.stripper.Strip(title)
	description = s.stripper.Strip(description)

	if title == "" {
		return validationFailure("Channel title is required.")
	}
	if len(title) > maxTitleLength {
		return validationFailure(fmt.Sprintf("Channel title must be at most %d characters.", maxTitleLength))
	}
	if len(description) > maxDescriptionLength {
		return validationFailure(fmt.Sprintf("Channel description must be at most %d characters.", maxDescriptionLength))
	}

	client, fail := s.initClient(sess, op)
	if fail != nil {
		return fail
	}

	start := time.Now()
	peer, err := client.CreateChannel(ctx, title, description)
	if err != nil {
		return s.failure(sess, op, err)
	}

	message := "Channel created."
	if peer != nil {
		message = fmt.Sprintf("Channel created with ID %d.", peer.ID)
	}
	return s.success(op, message, time.Since(start))
}

// DeleteChannel は指定チャンネルを削除する。
func (s *Service) DeleteChannel(ctx context.Context, sess *model.Session, channelID string) (result *model.CommandResult) {
	const op = "channels.delete"
	defer s.recoverCommand(sess, op, &result)

	id, ok := parseNumericID(channelID)
	if !ok {
		return validationFailure("Invalid channel ID.")
	}

	client, fail := s.initClient(sess, op)
	if fail != nil {
		return fail
	}

	start := time.Now()
	if err := client.DeleteChannel(ctx, id); err != nil {
		return s.failure(sess, op, err)
	}
	return s.success(op, "Channel deleted.", time.Since(start))
}

// ListChannels はアカウントのダイアログのうちチャンネル系
// （channel/group/supergroup）のみを返す。
// いかなる障害でも空リストへ縮退し、エラーを上位へ返さない。
func (s *Service) ListChannels(ctx context.Context, sess *model.Session) (channels []model.ChannelInfo) {
	const op = "dialogs.list"
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("チャンネル一覧取得中にpanicから回復しました",
				slog.String("operation", op),
				slog.Any("panic", r),
			)
			channels = []model.ChannelInfo{}
		}
	}()

	channels = []model.ChannelInfo{}

	client, err := s.factory.InitializeClient(sess)
	if err != nil {
		s.logger.Error("ハンドル初期化に失敗",
			slog.String("operation", op),
			slog.String("error", err.Error()),
		)
		return channels
	}

	start := time.Now()
	peers, err := client.ListDialogs(ctx)
	if err != nil {
		s.metrics.RecordConnectorCall(op, "failure")
		s.logger.Error("ダイアログ一覧の取得に失敗しました",
			slog.String("operation", op),
			slog.String("error", err.Error()),
		)
		s.reporter.CaptureError(err, diagnostics.SessionContextFrom(sess), map[string]any{"operation": op})
		return channels
	}
	s.metrics.RecordConnectorCall(op, "success")
	s.metrics.RecordConnectorLatency(op, time.Since(start))

	for _, peer := range peers {
		if !peer.Kind.IsChannelLike() {
			continue
		}
		channels = append(channels, model.ChannelInfo{
			ID:       peer.ID,
			Title:    peer.Title,
			Username: peer.Username,
			Type:     string(peer.Kind),
		})
	}
	return channels
}

// InviteUser は指定ユーザーへチャンネルの招待リンクをDMで送る。
// 招待リンクの発行とDM送信の2回のコネクタ呼び出しを行う。
func (s *Service) InviteUser(ctx context.Context, sess *model.Session, channelID, username string) (result *model.CommandResult) {
	const op = "channels.invite"
	defer s.recoverCommand(sess, op, &result)

	id, ok := parseNumericID(channelID)
	if !ok {
		return validationFailure("Invalid channel ID.")
	}
	name, ok := normalizeUsername(username)
	if !ok {
		return validationFailure("Invalid username.")
	}

	client, fail := s.initClient(sess, op)
	if fail != nil {
		return fail
	}

	start := time.Now()
	link, err := client.ExportInviteLink(ctx, id)
	if err != nil {
		return s.failure(sess, "channels.exportInvite", err)
	}

	text := fmt.Sprintf("You have been invited to a channel: %s", link)
	if _, err := client.SendMessage(ctx, "@"+name, text); err != nil {
		return s.failure(sess, "messages.send", err)
	}

	return s.success(op, fmt.Sprintf("Invitation sent to @%s.", name), time.Since(start))
}
