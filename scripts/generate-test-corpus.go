//go:build ignore

// Generates a synthetic markdown corpus for manual indexing and search
// experiments.
// Usage: go run scripts/generate-test-corpus.go -files 200 -output testdata/corpus
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
)

var (
	numFiles  = flag.Int("files", 200, "Number of documents to generate")
	outputDir = flag.String("output", "testdata/corpus", "Output directory")
	seed      = flag.Int64("seed", 42, "Random seed for reproducibility")
)

var topics = []string{
	"tide pools", "glacier retreat", "sourdough baking", "sparrow migration",
	"harbor ferries", "volcanic soil", "lighthouse keeping", "windmill repair",
	"river navigation", "alpine meadows", "desert irrigation", "coastal erosion",
}

var sentences = []string{
	"Observations were recorded over several seasons.",
	"The results varied more than expected between sites.",
	"Local conditions play a larger role than latitude.",
	"Earlier surveys reached a similar conclusion.",
	"A follow-up study is planned for next year.",
	"Measurements were taken at dawn and dusk.",
	"The pattern holds across most of the region.",
	"Equipment failures caused two gaps in the record.",
}

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	for i := 0; i < *numFiles; i++ {
		topic := topics[rng.Intn(len(topics))]
		var b strings.Builder
		fmt.Fprintf(&b, "---\ntitle: Notes on %s (%d)\n---\n\n", topic, i)
		fmt.Fprintf(&b, "# Notes on %s\n\n", topic)
		for p := 0; p < 3+rng.Intn(5); p++ {
			for s := 0; s < 3+rng.Intn(4); s++ {
				b.WriteString(sentences[rng.Intn(len(sentences))])
				b.WriteString(" ")
			}
			b.WriteString("\n\n")
		}

		name := filepath.Join(*outputDir, fmt.Sprintf("doc-%04d.md", i))
		if err := os.WriteFile(name, []byte(b.String()), 0o644); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
	fmt.Printf("Wrote %d documents to %s\n", *numFiles, *outputDir)
}
