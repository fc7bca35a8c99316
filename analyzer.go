package imgclass

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"os"
	"slices"
)

// Analyzer evaluates a model's predictions against ground truth.
type Analyzer struct {
	Model   Model     // required for Predict
	Display Display   // required for ShowResults (nil = text only)
	Out     io.Writer // report destination (nil = os.Stdout)
	Rand    *rand.Rand
}

// Accuracy is a correct/total tally.
type Accuracy struct {
	Correct int
	Total   int
	Percent float64 // rounded to two decimals, 0 when Total is 0
}

// ClassAccuracy is the tally for the samples whose true class is Class.
type ClassAccuracy struct {
	Class string
	Accuracy
}

// Correctness filters ShowResults by prediction outcome.
type Correctness int

const (
	AnyOutcome Correctness = iota
	CorrectOnly
	IncorrectOnly
)

// ShowOptions selects which samples ShowResults reports.
type ShowOptions struct {
	Correctness Correctness
	Classes     []string // only samples whose true class is listed (nil = all)
	SampleCount int      // random sample size (<= 0 = every qualifying sample)
}

// ClassScore is one column of a prediction row.
type ClassScore struct {
	Class string
	Score float32
}

// Result describes one reported sample.
type Result struct {
	Index      int
	Answer     string
	Prediction string
	Scores     []ClassScore
}

func (a *Analyzer) out() io.Writer {
	if a.Out == nil {
		return os.Stdout
	}
	return a.Out
}

func (a *Analyzer) rng() *rand.Rand {
	if a.Rand == nil {
		a.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return a.Rand
}

// LoadImages loads a labelled image set; see the package-level LoadImages.
func (a *Analyzer) LoadImages(opts LoadOptions) (*LoadResult, error) {
	return LoadImages(opts)
}

// Predict runs the model over images.
func (a *Analyzer) Predict(ctx context.Context, images []*Array) ([][]float32, error) {
	if a.Model == nil {
		return nil, ErrNoModel
	}
	return a.Model.Predict(ctx, images)
}

// ArgMax returns the index of the first largest value, or -1 for an empty row.
func ArgMax(row []float32) int {
	if len(row) == 0 {
		return -1
	}
	best := 0
	for i, v := range row[1:] {
		if v > row[best] {
			best = i + 1
		}
	}
	return best
}

// PredictedIndices splits sample indices by whether the arg-max of the
// prediction row equals the arg-max of the answer row.
func PredictedIndices(predictions, answers [][]float32) (correct, incorrect []int, err error) {
	if len(predictions) != len(answers) {
		return nil, nil, fmt.Errorf("%w: %d predictions, %d answers", ErrLengthMismatch, len(predictions), len(answers))
	}
	for i := range predictions {
		if ArgMax(predictions[i]) == ArgMax(answers[i]) {
			correct = append(correct, i)
		} else {
			incorrect = append(incorrect, i)
		}
	}
	return correct, incorrect, nil
}

func newAccuracy(correct, total int) Accuracy {
	acc := Accuracy{Correct: correct, Total: total}
	if total > 0 {
		acc.Percent = math.Round(float64(correct)/float64(total)*100*100) / 100
	}
	return acc
}

// OverallAccuracy tallies every sample.
func OverallAccuracy(predictions, answers [][]float32) (Accuracy, error) {
	correct, _, err := PredictedIndices(predictions, answers)
	if err != nil {
		return Accuracy{}, err
	}
	return newAccuracy(len(correct), len(predictions)), nil
}

// ClassAccuracies tallies, for each position i of classes, the samples whose
// answer arg-max is i. Classes without samples report 0%.
func ClassAccuracies(predictions, answers [][]float32, classes []string) ([]ClassAccuracy, error) {
	correct, incorrect, err := PredictedIndices(predictions, answers)
	if err != nil {
		return nil, err
	}
	hits := make(map[int]int)
	totals := make(map[int]int)
	for _, i := range correct {
		c := ArgMax(answers[i])
		hits[c]++
		totals[c]++
	}
	for _, i := range incorrect {
		totals[ArgMax(answers[i])]++
	}

	out := make([]ClassAccuracy, len(classes))
	for i, name := range classes {
		out[i] = ClassAccuracy{Class: name, Accuracy: newAccuracy(hits[i], totals[i])}
	}
	return out, nil
}

// Accuracy prints the overall accuracy when simple is set, otherwise the
// accuracy of every class in classes.
func (a *Analyzer) Accuracy(predictions, answers [][]float32, simple bool, classes []string) error {
	w := a.out()
	if simple {
		acc, err := OverallAccuracy(predictions, answers)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Overall Accuracy: %g%%\n", acc.Percent)
		return nil
	}

	per, err := ClassAccuracies(predictions, answers, classes)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "Accuracy per classification:")
	for _, c := range per {
		fmt.Fprintf(w, "%s: %d/%d, %g%%\n", c.Class, c.Correct, c.Total, c.Percent)
	}
	return nil
}

// SelectResults filters samples by outcome and true class, then draws a
// random sample without replacement. When fewer samples qualify than
// requested, every qualifying sample is returned and a note is printed.
func (a *Analyzer) SelectResults(predictions, answers [][]float32, classes []string, opts ShowOptions) ([]Result, error) {
	var indices []int
	switch opts.Correctness {
	case CorrectOnly, IncorrectOnly:
		correct, incorrect, err := PredictedIndices(predictions, answers)
		if err != nil {
			return nil, err
		}
		indices = correct
		if opts.Correctness == IncorrectOnly {
			indices = incorrect
		}
	default:
		if len(predictions) != len(answers) {
			return nil, fmt.Errorf("%w: %d predictions, %d answers", ErrLengthMismatch, len(predictions), len(answers))
		}
		for i := range predictions {
			indices = append(indices, i)
		}
	}

	if opts.Classes != nil {
		kept := indices[:0:0]
		for _, i := range indices {
			c := ArgMax(answers[i])
			if c >= 0 && c < len(classes) && slices.Contains(opts.Classes, classes[c]) {
				kept = append(kept, i)
			}
		}
		indices = kept
	}

	if opts.SampleCount > 0 {
		n := opts.SampleCount
		if len(indices) < n {
			fmt.Fprintf(a.out(), "NOTE!!!\nOnly %d images qualify for this filter.\n\n", len(indices))
			slog.Debug("imgclass: sample count clamped", "requested", n, "available", len(indices))
			n = len(indices)
		}
		perm := a.rng().Perm(len(indices))[:n]
		sampled := make([]int, n)
		for k, p := range perm {
			sampled[k] = indices[p]
		}
		indices = sampled
	}

	results := make([]Result, 0, len(indices))
	for _, i := range indices {
		r, err := describe(i, predictions[i], answers[i], classes)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, nil
}

func describe(i int, pred, answer []float32, classes []string) (Result, error) {
	ai, pi := ArgMax(answer), ArgMax(pred)
	if ai < 0 || ai >= len(classes) || pi < 0 || pi >= len(classes) || len(pred) > len(classes) {
		return Result{}, fmt.Errorf("%w: sample %d has %d scores for %d classes",
			ErrIndexOutOfRange, i, len(pred), len(classes))
	}
	r := Result{Index: i, Answer: classes[ai], Prediction: classes[pi]}
	for c, v := range pred {
		r.Scores = append(r.Scores, ClassScore{Class: classes[c], Score: v})
	}
	return r, nil
}

// ShowResults prints the selected samples with their true class, predicted
// class and every class score, and renders each image on the display.
func (a *Analyzer) ShowResults(predictions, answers [][]float32, classes []string, images []*Array, opts ShowOptions) error {
	results, err := a.SelectResults(predictions, answers, classes, opts)
	if err != nil {
		return err
	}

	w := a.out()
	for n, r := range results {
		fmt.Fprintf(w, "Image %d:\n", n+1)
		fmt.Fprintf(w, "Correct answer: %s\n", r.Answer)
		fmt.Fprintf(w, "Prediction:\t%s\n\n", r.Prediction)
		for _, s := range r.Scores {
			fmt.Fprintln(w, s.Class, s.Score)
		}
		if a.Display != nil {
			if r.Index >= len(images) {
				return fmt.Errorf("%w: image %d of %d", ErrIndexOutOfRange, r.Index, len(images))
			}
			title := fmt.Sprintf("%03d_%s_as_%s", n+1, r.Answer, r.Prediction)
			if err := a.Display.Show(title, images[r.Index]); err != nil {
				return fmt.Errorf("display image %d: %w", r.Index, err)
			}
		}
		fmt.Fprintln(w, "------------------------------")
	}
	return nil
}
