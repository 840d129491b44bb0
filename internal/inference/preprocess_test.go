package inference

import "testing"

func TestWorkspace_PreprocessUniformImageStaysUniform(t *testing.T) {
	w := NewWorkspace(4, 4)
	src := make([]byte, 8*8*3)
	for i := range src {
		src[i] = 128
	}
	tensor := w.Preprocess(src, 8, 8)
	for _, v := range tensor.Data {
		got := float64(v)
		want := 128.0 / 255.0
		if diff := got - want; diff > 1e-3 || diff < -1e-3 {
			t.Fatalf("expected uniform normalized value ~%v, got %v", want, got)
		}
	}
}

func TestWorkspace_PreprocessHandlesUndersizedPayload(t *testing.T) {
	w := NewWorkspace(4, 4)
	tensor := w.Preprocess([]byte{1, 2, 3}, 8, 8)
	if len(tensor.Data) != 3*4*4 {
		t.Fatalf("expected zeroed tensor of correct size, got %d", len(tensor.Data))
	}
}
