package deps

import (
	"reflect"
	"testing"
)

func TestResolve_MapsDivergentNames(t *testing.T) {
	code := `
import pandas as pd
from sklearn import linear_model
import cv2
`
	got := Resolve(code)
	want := []Requirement{
		{Import: "cv2", Package: "opencv-python"},
		{Import: "pandas", Package: "pandas"},
		{Import: "sklearn", Package: "scikit-learn"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Resolve() = %v, want %v", got, want)
	}
}

func TestResolve_SkipsStdlib(t *testing.T) {
	code := `
import os
import json
from datetime import datetime
import numpy
`
	got := Resolve(code)
	if len(got) != 1 || got[0].Package != "numpy" {
		t.Errorf("expected only numpy, got %v", got)
	}
}

func TestResolve_Deduplicates(t *testing.T) {
	code := `
import requests
from requests import Session
import requests.adapters
`
	got := Resolve(code)
	if len(got) != 1 {
		t.Fatalf("expected 1 requirement, got %v", got)
	}
}

func TestResolve_IndentedCountCommentedIgnored(t *testing.T) {
	// Indented imports still count (common inside try blocks); commented
	// ones and mid-line mentions must not.
	code := "try:\n    import plotly\nexcept ImportError:\n    pass\n# import fakepkg\nprint('importance')"
	got := Resolve(code)
	found := map[string]bool{}
	for _, r := range got {
		found[r.Import] = true
	}
	if !found["plotly"] {
		t.Errorf("expected plotly in %v", got)
	}
	if found["fakepkg"] || found["importance"] {
		t.Errorf("unexpected requirement resolved: %v", got)
	}
}

func TestResolve_NoImports(t *testing.T) {
	if got := Resolve("print(1 + 1)"); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}

func TestPackageName(t *testing.T) {
	if got := PackageName("PIL"); got != "pillow" {
		t.Errorf("PackageName(PIL) = %q", got)
	}
	if got := PackageName(" pandas "); got != "pandas" {
		t.Errorf("PackageName(pandas) = %q", got)
	}
}
