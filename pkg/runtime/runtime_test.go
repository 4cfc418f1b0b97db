package runtime

import (
	"strings"
	"testing"
)

func TestTruncate(t *testing.T) {
	long := strings.Repeat("x", 100)

	got := Truncate(long, 10)
	if !strings.HasPrefix(got, "xxxxxxxxxx") || !strings.HasSuffix(got, "[output truncated]") {
		t.Errorf("Truncate = %q", got)
	}

	if got := Truncate("short", 10); got != "short" {
		t.Errorf("short input must pass through, got %q", got)
	}
	if got := Truncate(long, 0); got != long {
		t.Errorf("zero limit must mean unlimited")
	}
}

func TestInstrumentPlotCode_ReplacesShow(t *testing.T) {
	code := "import matplotlib.pyplot as plt\nplt.plot([1,2])\nplt.show()\n"
	got := InstrumentPlotCode(code)
	if strings.Contains(got, "plt.show") {
		t.Errorf("plt.show survived: %q", got)
	}
	if !strings.Contains(got, "plt.savefig") {
		t.Errorf("expected savefig rewrite: %q", got)
	}
}

func TestInstrumentPlotCode_AppendsSavefig(t *testing.T) {
	code := "import matplotlib.pyplot as plt\nplt.plot([1,2])\n"
	got := InstrumentPlotCode(code)
	if !strings.HasSuffix(strings.TrimSpace(got), `"figure.png"))`) {
		t.Errorf("expected trailing savefig: %q", got)
	}
}

func TestInstrumentPlotCode_LeavesNonPlottingCode(t *testing.T) {
	code := "print('hello')"
	if got := InstrumentPlotCode(code); got != code {
		t.Errorf("non-plotting code must pass through, got %q", got)
	}
	withSave := "import matplotlib.pyplot as plt\nplt.plot([1])\nplt.savefig('x.png')\n"
	if got := InstrumentPlotCode(withSave); got != withSave {
		t.Errorf("explicit savefig must pass through, got %q", got)
	}
}
