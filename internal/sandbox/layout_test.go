package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/GriffinCanCode/deskglyph/internal/protocol"
)

func TestGridPosition(t *testing.T) {
	base := protocol.PositionInput{ScreenWidth: 1000, ScreenHeight: 800, IconCount: 12, CellWidth: 100, CellHeight: 90}

	// (1000 - 2*20) / 100 = 9 columns
	for i := uint32(0); i < 9; i++ {
		in := base
		in.IconIndex = i
		assert.Equal(t, protocol.Position{X: protocol.Number(20 + 100*i), Y: 20}, GridPosition(in), "index %d", i)
	}

	in := base
	in.IconIndex = 9
	assert.Equal(t, protocol.Position{X: 20, Y: 110}, GridPosition(in))
}

func TestGridPositionWraps(t *testing.T) {
	// (900 - 2*20) / 100 = 8 columns, so index 8 starts row 1
	in := protocol.PositionInput{ScreenWidth: 900, CellWidth: 100, CellHeight: 100}

	tests := []struct {
		index uint32
		want  protocol.Position
	}{
		{0, protocol.Position{X: 20, Y: 20}},
		{7, protocol.Position{X: 720, Y: 20}},
		{8, protocol.Position{X: 20, Y: 120}},
		{17, protocol.Position{X: 120, Y: 220}},
	}
	for _, tt := range tests {
		in.IconIndex = tt.index
		assert.Equal(t, tt.want, GridPosition(in), "index %d", tt.index)
	}
}

func TestGridPositionDegenerate(t *testing.T) {
	tests := []struct {
		name string
		in   protocol.PositionInput
		want protocol.Position
	}{
		{name: "zero cell width", in: protocol.PositionInput{ScreenWidth: 1000, IconIndex: 3, CellHeight: 50}, want: protocol.Position{X: 20, Y: 170}},
		{name: "screen narrower than margins", in: protocol.PositionInput{ScreenWidth: 30, IconIndex: 2, CellWidth: 10, CellHeight: 10}, want: protocol.Position{X: 20, Y: 40}},
		{name: "cell wider than screen", in: protocol.PositionInput{ScreenWidth: 100, IconIndex: 1, CellWidth: 500, CellHeight: 10}, want: protocol.Position{X: 20, Y: 30}},
		{name: "all zero", in: protocol.PositionInput{}, want: protocol.Position{X: 20, Y: 20}},
		{name: "max index", in: protocol.PositionInput{ScreenWidth: 1000, IconIndex: 4294967295, CellWidth: 100, CellHeight: 100}, want: protocol.Position{X: 20 + 100*(4294967295%9), Y: 20 + 100*(4294967295/9)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GridPosition(tt.in))
		})
	}
}
