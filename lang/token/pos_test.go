package token

import "testing"

func TestMakePosLineCol(t *testing.T) {
	p := MakePos(12, 34)
	line, col := p.LineCol()
	if line != 12 || col != 34 {
		t.Errorf("want (12, 34), got (%d, %d)", line, col)
	}
}

func TestPosUnknown(t *testing.T) {
	if !MakePos(0, 5).Unknown() {
		t.Error("want unknown line to report Unknown()")
	}
	if !MakePos(5, 0).Unknown() {
		t.Error("want unknown column to report Unknown()")
	}
	if MakePos(1, 1).Unknown() {
		t.Error("want known line/col to not report Unknown()")
	}
}
