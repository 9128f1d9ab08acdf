// Package i18n translates user-facing API messages. Lookups are pure: the
// caller passes the locale, nothing is installed process-wide.
package i18n

import (
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Key identifies a translatable message.
type Key string

const (
	MsgInvalidRequest     Key = "invalid_request"
	MsgInternal           Key = "internal_error"
	MsgUnauthenticated    Key = "unauthenticated"
	MsgInvalidCredentials Key = "invalid_credentials"
	MsgEmailExists        Key = "email_exists"
	MsgInvalidEmail       Key = "invalid_email"
	MsgPasswordTooShort   Key = "password_too_short"
	MsgTopicRequired      Key = "topic_required"
	MsgJobNotFound        Key = "job_not_found"
	MsgReportNotReady     Key = "report_not_ready"
	MsgReportNotFound     Key = "report_not_found"
	MsgKeyFieldsRequired  Key = "key_fields_required"
	MsgKeyExists          Key = "key_exists"
	MsgKeyNotFound        Key = "key_not_found"
)

var supported = []language.Tag{language.English, language.Russian}

var matcher = language.NewMatcher(supported)

var translations = map[language.Tag]map[Key]string{
	language.English: {
		MsgInvalidRequest:     "Invalid request body.",
		MsgInternal:           "Internal server error.",
		MsgUnauthenticated:    "Could not validate credentials.",
		MsgInvalidCredentials: "Incorrect email or password.",
		MsgEmailExists:        "A user with this email already exists.",
		MsgInvalidEmail:       "Invalid email address.",
		MsgPasswordTooShort:   "Password must be at least %d characters long.",
		MsgTopicRequired:      "Research topic must not be empty.",
		MsgJobNotFound:        "Research not found.",
		MsgReportNotReady:     "Report is not ready yet. Current status: %s",
		MsgReportNotFound:     "Report not found.",
		MsgKeyFieldsRequired:  "Key name and value must not be empty.",
		MsgKeyExists:          "A key with this name already exists.",
		MsgKeyNotFound:        "Key not found.",
	},
	language.Russian: {
		MsgInvalidRequest:     "Некорректное тело запроса.",
		MsgInternal:           "Внутренняя ошибка сервера.",
		MsgUnauthenticated:    "Не удалось валидировать учетные данные.",
		MsgInvalidCredentials: "Неверный email или пароль.",
		MsgEmailExists:        "Пользователь с таким email уже существует в системе.",
		MsgInvalidEmail:       "Некорректный email.",
		MsgPasswordTooShort:   "Пароль должен содержать не менее %d символов.",
		MsgTopicRequired:      "Тема исследования не может быть пустой.",
		MsgJobNotFound:        "Исследование не найдено.",
		MsgReportNotReady:     "Отчет еще не готов. Текущий статус: %s",
		MsgReportNotFound:     "Отчет не найден.",
		MsgKeyFieldsRequired:  "Имя и значение ключа не могут быть пустыми.",
		MsgKeyExists:          "Ключ с таким именем уже существует.",
		MsgKeyNotFound:        "Ключ не найден.",
	},
}

var cat = buildCatalog()

func buildCatalog() catalog.Catalog {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for tag, msgs := range translations {
		for key, msg := range msgs {
			if err := b.SetString(tag, string(key), msg); err != nil {
				panic(fmt.Sprintf("i18n: %s/%s: %v", tag, key, err))
			}
		}
	}
	return b
}

// Translate renders key in the given locale, falling back to English.
func Translate(tag language.Tag, key Key, args ...any) string {
	p := message.NewPrinter(Match(tag), message.Catalog(cat))
	return p.Sprintf(string(key), args...)
}

// Match maps any tag onto the closest supported one.
func Match(tag language.Tag) language.Tag {
	_, idx, conf := matcher.Match(tag)
	if conf == language.No {
		return language.English
	}
	return supported[idx]
}

// Negotiate picks the best supported locale for an Accept-Language header.
func Negotiate(acceptLanguage string, fallback language.Tag) language.Tag {
	if acceptLanguage == "" {
		return Match(fallback)
	}
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return Match(fallback)
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return Match(fallback)
	}
	return supported[idx]
}

// Message is a deferred translation carried through error values until the
// request locale is known.
type Message struct {
	Key  Key
	Args []any
}

// M builds a Message.
func M(key Key, args ...any) Message { return Message{Key: key, Args: args} }

// In renders the message in tag.
func (m Message) In(tag language.Tag) string { return Translate(tag, m.Key, m.Args...) }

func (m Message) String() string { return m.In(language.English) }
