package engines

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/shaiso/promptflow/internal/domain"
)

// EngineTelegram — имя движка telegram.
const EngineTelegram = "telegram"

// Действия движка telegram.
const (
	TelegramSendMessage  = "sendMessage"
	TelegramSendPoll     = "sendPoll"
	TelegramSendPhoto    = "sendPhoto"
	TelegramSendDocument = "sendDocument"
	TelegramSendVideo    = "sendVideo"
)

// TelegramEngine публикует сообщения через Bot API.
//
// Параметры:
//
//	{
//	    "botToken": "123:abc",        // иначе токен из конфигурации
//	    "channelId": "-100123" | "@channel",
//	    "action": "sendMessage",      // sendPoll, sendPhoto, sendDocument, sendVideo
//	    "message": "...",             // по умолчанию content шага
//	    "parse_mode": "HTML",
//	    "question": "...", "options": ["a", "b"],
//	    "photoUrl": "...", "documentUrl": "...", "videoUrl": "...", "caption": "..."
//	}
//
// Результат: {"message_id": 1, "chat_id": -100123, "date": 1700000000}.
type TelegramEngine struct {
	// Token используется, если в параметрах нет botToken.
	Token string

	// Endpoint — шаблон URL Bot API (по умолчанию tgbotapi.APIEndpoint).
	Endpoint string

	// Client — HTTP-клиент (по умолчанию http.DefaultClient).
	Client *http.Client
}

// Execute отправляет сообщение.
func (e *TelegramEngine) Execute(ctx context.Context, content, _ string, params domain.Value) (domain.Value, error) {
	token, _ := params.StringField("botToken")
	if token == "" {
		token = e.Token
	}
	channel, _ := params.StringField("channelId")
	if token == "" || channel == "" {
		return domain.Value{}, invalidParams(EngineTelegram, `"botToken" and "channelId" are required`)
	}

	action, _ := params.StringField("action")
	if action == "" {
		action = TelegramSendMessage
	}

	msg, err := buildTelegramMessage(action, channel, content, params)
	if err != nil {
		return domain.Value{}, err
	}

	endpoint := e.Endpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	client := e.Client
	if client == nil {
		client = http.DefaultClient
	}

	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, &ctxHTTPClient{ctx: ctx, client: client})
	if err != nil {
		if ctx.Err() != nil {
			return domain.Value{}, cancelled(context.Cause(ctx))
		}
		return domain.Value{}, err
	}

	sent, err := bot.Send(msg)
	if err != nil {
		if ctx.Err() != nil {
			return domain.Value{}, cancelled(context.Cause(ctx))
		}
		return domain.Value{}, err
	}

	out := map[string]domain.Value{
		"message_id": domain.Int(int64(sent.MessageID)),
		"date":       domain.Int(int64(sent.Date)),
	}
	if sent.Chat != nil {
		out["chat_id"] = domain.Int(sent.Chat.ID)
	}
	return domain.Object(out), nil
}

// telegramChat разбирает channelId: число или @username.
func telegramChat(channel string) (int64, string) {
	if id, err := strconv.ParseInt(channel, 10, 64); err == nil {
		return id, ""
	}
	if !strings.HasPrefix(channel, "@") {
		channel = "@" + channel
	}
	return 0, channel
}

func buildTelegramMessage(action, channel, content string, params domain.Value) (tgbotapi.Chattable, error) {
	chatID, username := telegramChat(channel)
	parseMode, _ := params.StringField("parse_mode")
	caption, _ := params.StringField("caption")

	switch action {
	case TelegramSendMessage:
		text, _ := params.StringField("message")
		if text == "" {
			text = content
		}
		if strings.TrimSpace(text) == "" {
			return nil, invalidParams(EngineTelegram, `"message" is required for %s`, action)
		}
		msg := tgbotapi.NewMessage(chatID, text)
		msg.ChannelUsername = username
		msg.ParseMode = parseMode
		return msg, nil

	case TelegramSendPoll:
		question, _ := params.StringField("question")
		optionsVal, _ := params.Field("options")
		var options []string
		for _, o := range optionsVal.Items() {
			options = append(options, o.Text())
		}
		if question == "" || len(options) < 2 {
			return nil, invalidParams(EngineTelegram, `"question" and at least two "options" are required for %s`, action)
		}
		poll := tgbotapi.NewPoll(chatID, question, options...)
		poll.ChannelUsername = username
		return poll, nil

	case TelegramSendPhoto:
		u, _ := params.StringField("photoUrl")
		if u == "" {
			return nil, invalidParams(EngineTelegram, `"photoUrl" is required for %s`, action)
		}
		photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(u))
		photo.ChannelUsername = username
		photo.Caption = caption
		photo.ParseMode = parseMode
		return photo, nil

	case TelegramSendDocument:
		u, _ := params.StringField("documentUrl")
		if u == "" {
			u, _ = params.StringField("documentPath")
		}
		if u == "" {
			return nil, invalidParams(EngineTelegram, `"documentUrl" is required for %s`, action)
		}
		doc := tgbotapi.NewDocument(chatID, tgbotapi.FileURL(u))
		doc.ChannelUsername = username
		doc.Caption = caption
		doc.ParseMode = parseMode
		return doc, nil

	case TelegramSendVideo:
		u, _ := params.StringField("videoUrl")
		if u == "" {
			return nil, invalidParams(EngineTelegram, `"videoUrl" is required for %s`, action)
		}
		video := tgbotapi.NewVideo(chatID, tgbotapi.FileURL(u))
		video.ChannelUsername = username
		video.Caption = caption
		video.ParseMode = parseMode
		return video, nil
	}

	return nil, invalidParams(EngineTelegram, "unknown action %q", action)
}

// ctxHTTPClient привязывает запросы Bot API к контексту шага.
type ctxHTTPClient struct {
	ctx    context.Context
	client *http.Client
}

func (c *ctxHTTPClient) Do(req *http.Request) (*http.Response, error) {
	return c.client.Do(req.WithContext(c.ctx))
}
