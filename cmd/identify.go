package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/faceapi"
	"github.com/kozaktomas/face-attendance/internal/facematch"
)

var identifyCmd = &cobra.Command{
	Use:   "identify <photo>",
	Short: "Show who the faces in a photo match, without marking attendance",
	Long: `Detect the faces in a photo and list the best matching enrolled students
for each, with their similarity. Nothing is written.

With the postgres backend the candidates come from the pgvector index;
otherwise every enrollment is compared.

Examples:
  face-attendance identify group.jpg
  face-attendance identify --top 5 --json group.jpg`,
	Args: cobra.ExactArgs(1),
	RunE: runIdentify,
}

func init() {
	rootCmd.AddCommand(identifyCmd)

	identifyCmd.Flags().Int("top", constants.DefaultTopK, "Candidates to list per face")
	identifyCmd.Flags().Float64("threshold", constants.DefaultSimilarityThreshold, "Minimum cosine similarity to accept a match (0.50-1.00)")
	identifyCmd.Flags().Bool("json", false, "Output as JSON")
}

type identifiedFace struct {
	Index      int                   `json:"face_index"`
	BBox       []float64             `json:"bbox"`
	Match      facematch.MatchResult `json:"match"`
	Candidates []facematch.Candidate `json:"candidates"`
}

// nearestSearcher is implemented by backends that rank enrollments themselves.
type nearestSearcher interface {
	NearestEnrollments(ctx context.Context, query []float64, k int) ([]database.IndexHit, error)
}

func runIdentify(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	top := mustGetInt(cmd, "top")
	if top < 0 {
		return errors.New("--top must not be negative")
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading photo: %w", err)
	}

	s, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	registry, _, err := loadRegistry(ctx, s, cfg.Embedding.Dim)
	if err != nil {
		return err
	}
	classifier, err := facematch.NewClassifier(registry, cfg.Recognition.Threshold)
	if err != nil {
		return err
	}

	resp, err := faceapi.NewClient(cfg.Embedding.URL).DetectFaces(ctx, data)
	if err != nil {
		return fmt.Errorf("detecting faces: %w", err)
	}

	searcher, _ := s.backend.Enrollments.(nearestSearcher)
	var faces []identifiedFace
	for i, obs := range resp.Observations() {
		match, err := classifier.Classify(obs.Embedding)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: face %d: %v\n", i, err)
			continue
		}
		face := identifiedFace{Index: i, BBox: obs.BBox, Match: match}
		face.Candidates, err = rankCandidates(ctx, classifier, searcher, obs.Embedding, top)
		if err != nil {
			return err
		}
		faces = append(faces, face)
	}

	if mustGetBool(cmd, "json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(faces)
	}
	printIdentified(faces, resp.FacesCount)
	return nil
}

// rankCandidates lists the top k enrollments, asking the backend when it can rank them.
func rankCandidates(ctx context.Context, classifier *facematch.Classifier, searcher nearestSearcher,
	query facematch.Embedding, k int) ([]facematch.Candidate, error) {
	if searcher == nil || k == 0 {
		return classifier.TopK(query, k)
	}
	hits, err := searcher.NearestEnrollments(ctx, query, k)
	if err != nil {
		return nil, fmt.Errorf("ranking candidates: %w", err)
	}
	candidates := make([]facematch.Candidate, len(hits))
	for i, hit := range hits {
		candidates[i] = facematch.Candidate{
			Key:         hit.StudentID,
			DisplayName: hit.DisplayName,
			Score:       hit.Similarity,
			Accepted:    hit.Similarity >= classifier.Threshold(),
		}
	}
	return candidates, nil
}

func printIdentified(faces []identifiedFace, detected int) {
	fmt.Printf("Detected %d faces\n\n", detected)
	for _, f := range faces {
		verdict := "unknown"
		if f.Match.Accepted {
			verdict = fmt.Sprintf("%s (%s)", f.Match.Key, f.Match.DisplayName)
		} else if f.Match.Compared() {
			verdict = fmt.Sprintf("unknown, nearest %s", f.Match.Nearest)
		}
		fmt.Printf("Face %d at %v: %s, similarity %.3f\n", f.Index, f.BBox, verdict, f.Match.Score)

		if len(f.Candidates) == 0 {
			continue
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "  ID\tNAME\tSIMILARITY\tACCEPTED")
		for _, c := range f.Candidates {
			fmt.Fprintf(w, "  %s\t%s\t%.3f\t%v\n", c.Key, c.DisplayName, c.Score, c.Accepted)
		}
		w.Flush()
		fmt.Println()
	}
}
