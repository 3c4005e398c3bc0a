package room

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"github.com/wfunc/territory/network"
)

// Command is the closed set of client requests. Only this package implements it.
type Command interface {
	Type() string
	command()
}

type CreateRoom struct {
	RoomID   string `json:"roomId" validate:"required,max=64"`
	Nickname string `json:"playerNickname" validate:"required,max=32"`
}

type JoinRoom struct {
	Nickname string `json:"playerNickname" validate:"required,max=32"`
}

// PlayerReady, StartGame and ClaimTerritory act as the nickname bound to the
// sending connection; a non-empty Nickname must match it.
type PlayerReady struct {
	Nickname string `json:"playerNickname" validate:"omitempty,max=32"`
	IsReady  bool   `json:"isReady"`
}

type StartGame struct {
	Nickname string `json:"playerNickname" validate:"omitempty,max=32"`
}

type ClaimTerritory struct {
	TerritoryID string `json:"territoryId" validate:"required,max=64"`
	Nickname    string `json:"playerNickname" validate:"omitempty,max=32"`
}

type ResetGame struct{}

func (*CreateRoom) Type() string     { return network.MsgTypeCreateRoom }
func (*JoinRoom) Type() string       { return network.MsgTypeJoinRoom }
func (*PlayerReady) Type() string    { return network.MsgTypePlayerReady }
func (*StartGame) Type() string      { return network.MsgTypeStartGame }
func (*ClaimTerritory) Type() string { return network.MsgTypeClaimTerritory }
func (*ResetGame) Type() string      { return network.MsgTypeResetGame }

func (*CreateRoom) command()     {}
func (*JoinRoom) command()       {}
func (*PlayerReady) command()    {}
func (*StartGame) command()      {}
func (*ClaimTerritory) command() {}
func (*ResetGame) command()      {}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// DecodeCommand parses one inbound frame into a Command.
func DecodeCommand(data []byte) (Command, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, protocolError(ErrMalformedMessage, err)
	}
	if envelope.Type == "" {
		return nil, protocolError(ErrMalformedMessage, "missing type")
	}

	var cmd Command
	switch envelope.Type {
	case network.MsgTypeCreateRoom:
		cmd = &CreateRoom{}
	case network.MsgTypeJoinRoom:
		cmd = &JoinRoom{}
	case network.MsgTypePlayerReady:
		cmd = &PlayerReady{}
	case network.MsgTypeStartGame:
		cmd = &StartGame{}
	case network.MsgTypeClaimTerritory:
		cmd = &ClaimTerritory{}
	case network.MsgTypeResetGame:
		cmd = &ResetGame{}
	default:
		return nil, protocolError(ErrUnknownCommand, envelope.Type)
	}

	if err := json.Unmarshal(data, cmd); err != nil {
		return nil, protocolError(ErrMalformedMessage, err)
	}
	if err := validate.Struct(cmd); err != nil {
		return nil, protocolError(ErrInvalidCommand, describe(err))
	}
	return cmd, nil
}

func describe(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err.Error()
	}
	return strings.Join(lo.Map(fieldErrs, func(fe validator.FieldError, _ int) string {
		switch fe.Tag() {
		case "required":
			return fe.Field() + " is required"
		case "max":
			return fe.Field() + " is too long"
		default:
			return fe.Field() + " is invalid"
		}
	}), ", ")
}
