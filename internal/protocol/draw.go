package protocol

import (
	"encoding/json"
	"fmt"
)

// DrawOp discriminates DrawCommand on the wire.
type DrawOp string

const (
	OpFillRect     DrawOp = "fill_rect"
	OpStrokeRect   DrawOp = "stroke_rect"
	OpFillCircle   DrawOp = "fill_circle"
	OpStrokeCircle DrawOp = "stroke_circle"
	OpLine         DrawOp = "line"
	OpText         DrawOp = "text"
	OpImage        DrawOp = "image"
	OpClear        DrawOp = "clear"
)

// DrawCommand is one abstract drawing primitive. Commands execute in order;
// later commands paint over earlier ones.
type DrawCommand interface {
	Op() DrawOp
}

type FillRect struct {
	X     Number `json:"x"`
	Y     Number `json:"y"`
	W     Number `json:"w"`
	H     Number `json:"h"`
	Color string `json:"color"`
}

type StrokeRect struct {
	X     Number `json:"x"`
	Y     Number `json:"y"`
	W     Number `json:"w"`
	H     Number `json:"h"`
	Color string `json:"color"`
	Width Number `json:"width"`
}

type FillCircle struct {
	CX    Number `json:"cx"`
	CY    Number `json:"cy"`
	R     Number `json:"r"`
	Color string `json:"color"`
}

type StrokeCircle struct {
	CX    Number `json:"cx"`
	CY    Number `json:"cy"`
	R     Number `json:"r"`
	Color string `json:"color"`
	Width Number `json:"width"`
}

type Line struct {
	X1    Number `json:"x1"`
	Y1    Number `json:"y1"`
	X2    Number `json:"x2"`
	Y2    Number `json:"y2"`
	Color string `json:"color"`
	Width Number `json:"width"`
}

type Text struct {
	Text  string `json:"text"`
	X     Number `json:"x"`
	Y     Number `json:"y"`
	Size  Number `json:"size"`
	Color string `json:"color"`
	Align string `json:"align"`
}

// Image references a file by path; the renderer decides whether to load it.
type Image struct {
	Path string `json:"path"`
	X    Number `json:"x"`
	Y    Number `json:"y"`
	W    Number `json:"w"`
	H    Number `json:"h"`
}

type Clear struct {
	Color string `json:"color"`
}

func (FillRect) Op() DrawOp     { return OpFillRect }
func (StrokeRect) Op() DrawOp   { return OpStrokeRect }
func (FillCircle) Op() DrawOp   { return OpFillCircle }
func (StrokeCircle) Op() DrawOp { return OpStrokeCircle }
func (Line) Op() DrawOp         { return OpLine }
func (Text) Op() DrawOp         { return OpText }
func (Image) Op() DrawOp        { return OpImage }
func (Clear) Op() DrawOp        { return OpClear }

// Commands is an ordered draw command sequence with a tagged JSON form.
type Commands []DrawCommand

// MarshalJSON implements json.Marshaler.
func (c Commands) MarshalJSON() ([]byte, error) {
	buf := []byte{'['}
	for i, cmd := range c {
		if i > 0 {
			buf = append(buf, ',')
		}
		data, err := marshalCommand(cmd)
		if err != nil {
			return nil, err
		}
		buf = append(buf, data...)
	}
	return append(buf, ']'), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Commands) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := codec.Unmarshal(data, &raws); err != nil {
		return err
	}

	out := make(Commands, 0, len(raws))
	for i, raw := range raws {
		cmd, err := unmarshalCommand(raw)
		if err != nil {
			return fmt.Errorf("command %d: %w", i, err)
		}
		out = append(out, cmd)
	}
	*c = out
	return nil
}

func marshalCommand(cmd DrawCommand) ([]byte, error) {
	switch v := cmd.(type) {
	case FillRect:
		return codec.Marshal(struct {
			Op DrawOp `json:"op"`
			FillRect
		}{OpFillRect, v})
	case StrokeRect:
		return codec.Marshal(struct {
			Op DrawOp `json:"op"`
			StrokeRect
		}{OpStrokeRect, v})
	case FillCircle:
		return codec.Marshal(struct {
			Op DrawOp `json:"op"`
			FillCircle
		}{OpFillCircle, v})
	case StrokeCircle:
		return codec.Marshal(struct {
			Op DrawOp `json:"op"`
			StrokeCircle
		}{OpStrokeCircle, v})
	case Line:
		return codec.Marshal(struct {
			Op DrawOp `json:"op"`
			Line
		}{OpLine, v})
	case Text:
		return codec.Marshal(struct {
			Op DrawOp `json:"op"`
			Text
		}{OpText, v})
	case Image:
		return codec.Marshal(struct {
			Op DrawOp `json:"op"`
			Image
		}{OpImage, v})
	case Clear:
		return codec.Marshal(struct {
			Op DrawOp `json:"op"`
			Clear
		}{OpClear, v})
	default:
		return nil, fmt.Errorf("unsupported draw command %T", cmd)
	}
}

func unmarshalCommand(raw []byte) (DrawCommand, error) {
	var head struct {
		Op DrawOp `json:"op"`
	}
	if err := codec.Unmarshal(raw, &head); err != nil {
		return nil, err
	}

	switch head.Op {
	case OpFillRect:
		return decodeAs[FillRect](raw)
	case OpStrokeRect:
		return decodeAs[StrokeRect](raw)
	case OpFillCircle:
		return decodeAs[FillCircle](raw)
	case OpStrokeCircle:
		return decodeAs[StrokeCircle](raw)
	case OpLine:
		return decodeAs[Line](raw)
	case OpText:
		return decodeAs[Text](raw)
	case OpImage:
		return decodeAs[Image](raw)
	case OpClear:
		return decodeAs[Clear](raw)
	case "":
		return nil, fmt.Errorf("draw op missing")
	default:
		return nil, fmt.Errorf("unknown draw op %q", head.Op)
	}
}

func decodeAs[T DrawCommand](raw []byte) (DrawCommand, error) {
	var v T
	if err := codec.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}
