// Package errs defines the error kinds reported by every public operation.
// Callers match kinds with errors.Is against the sentinels below, e.g.
// errors.Is(err, errs.ErrNotFound).
package errs

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

type Kind uint8

const (
	KindUnknown Kind = iota
	KindNotFound
	KindDuplicateName
	KindAlreadyLinked
	KindInvalidIndex
	KindInvalidAutoproxyMode
	KindBannedGuild
	KindMutedGuild
	KindSourceNotEligible
	KindStoreUnavailable
	KindMessengerUnavailable
	KindForbidden
	KindInvalidArgument
)

var kindNames = map[Kind]string{
	KindUnknown:              "unknown",
	KindNotFound:             "not_found",
	KindDuplicateName:        "duplicate_name",
	KindAlreadyLinked:        "already_linked",
	KindInvalidIndex:         "invalid_index",
	KindInvalidAutoproxyMode: "invalid_autoproxy_mode",
	KindBannedGuild:          "banned_guild",
	KindMutedGuild:           "muted_guild",
	KindSourceNotEligible:    "source_not_eligible",
	KindStoreUnavailable:     "store_unavailable",
	KindMessengerUnavailable: "messenger_unavailable",
	KindForbidden:            "forbidden",
	KindInvalidArgument:      "invalid_argument",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Error is the single concrete error type of the core.
type Error struct {
	Kind   Kind
	Detail string
	// Remaining is set for KindMutedGuild; zero with Permanent means an
	// open-ended mute.
	Remaining time.Duration
	Permanent bool
	Err       error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrNotFound             = &Error{Kind: KindNotFound}
	ErrDuplicateName        = &Error{Kind: KindDuplicateName}
	ErrAlreadyLinked        = &Error{Kind: KindAlreadyLinked}
	ErrInvalidIndex         = &Error{Kind: KindInvalidIndex}
	ErrInvalidAutoproxyMode = &Error{Kind: KindInvalidAutoproxyMode}
	ErrBannedGuild          = &Error{Kind: KindBannedGuild}
	ErrMutedGuild           = &Error{Kind: KindMutedGuild}
	ErrSourceNotEligible    = &Error{Kind: KindSourceNotEligible}
	ErrStoreUnavailable     = &Error{Kind: KindStoreUnavailable}
	ErrMessengerUnavailable = &Error{Kind: KindMessengerUnavailable}
	ErrForbidden            = &Error{Kind: KindForbidden}
	ErrInvalidArgument      = &Error{Kind: KindInvalidArgument}
)

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...), Err: err}
}

// Muted builds a KindMutedGuild error. A zero remaining duration means the
// mute never expires.
func Muted(guildID string, remaining time.Duration) *Error {
	return &Error{
		Kind:      KindMutedGuild,
		Detail:    "guild " + guildID,
		Remaining: remaining,
		Permanent: remaining <= 0,
	}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Message renders the user-facing explanation for err.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if !errors.As(err, &e) {
		return "Something went wrong. Please try again."
	}
	switch e.Kind {
	case KindNotFound:
		return "That member, channel or setting does not exist."
	case KindDuplicateName:
		return "You already have a member with that name here."
	case KindAlreadyLinked:
		return "This server is already linked to that global chat."
	case KindInvalidIndex:
		return "There is no proxy tag at that position."
	case KindInvalidAutoproxyMode:
		return "That autoproxy mode is not valid, or its member could not be found."
	case KindBannedGuild:
		return "This server is banned from that global chat."
	case KindMutedGuild:
		if e.Permanent {
			return "This server is muted in that global chat permanently."
		}
		return fmt.Sprintf("This server is muted in that global chat for another %s.", e.Remaining.Round(time.Second))
	case KindSourceNotEligible:
		if inner := KindOf(e.Err); inner == KindMutedGuild || inner == KindBannedGuild {
			return Message(e.Err)
		}
		return "Messages from this channel are not relayed."
	case KindStoreUnavailable:
		return "Storage is unavailable right now; the change may not have been saved."
	case KindMessengerUnavailable:
		return "The message could not be delivered to one of the linked channels."
	case KindForbidden:
		return "You do not have permission to do that."
	case KindInvalidArgument:
		if e.Detail != "" {
			return "Invalid input: " + e.Detail + "."
		}
		return "Invalid input."
	default:
		return "Something went wrong. Please try again."
	}
}

// HTTPStatus maps a kind onto the status code used by the command API.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindDuplicateName, KindAlreadyLinked:
		return http.StatusConflict
	case KindInvalidIndex, KindInvalidAutoproxyMode, KindInvalidArgument:
		return http.StatusBadRequest
	case KindBannedGuild, KindMutedGuild, KindSourceNotEligible, KindForbidden:
		return http.StatusForbidden
	case KindStoreUnavailable, KindMessengerUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
