package forwardindex_test

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/hupe1980/forwardindex"
	"github.com/hupe1980/forwardindex/blobstore"
)

func Example() {
	dir, err := os.MkdirTemp("", "forwardindex-example")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	annotations := []string{"word", "lemma"}

	fi, err := forwardindex.Create(dir, "contents", annotations)
	if err != nil {
		log.Fatal(err)
	}
	record := forwardindex.Record{}
	if _, err := fi.AddDocument(record, map[string]forwardindex.Contents{
		"word":  {Values: []string{"The", "cats", "sat", "down", ""}},
		"lemma": {Values: []string{"the", "cat", "sit", "down", ""}},
	}); err != nil {
		log.Fatal(err)
	}
	if err := fi.Close(); err != nil {
		log.Fatal(err)
	}

	fi, err = forwardindex.Open(dir, "contents", annotations)
	if err != nil {
		log.Fatal(err)
	}
	defer fi.Close()

	doc, err := fi.DocFromRecord(record)
	if err != nil {
		log.Fatal(err)
	}
	lemmas, err := doc.Strings("lemma", []int{1}, []int{3})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(record["contents%lemma#fiid"], lemmas[0])
	// Output: 0 [cat sit]
}

func ExampleOpenSegments() {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	annotations := []string{"word"}

	for i, words := range [][]string{{"a", "dog", ""}, {"the", "dog", ""}} {
		b, err := forwardindex.NewSegmentBuilder("contents", annotations)
		if err != nil {
			log.Fatal(err)
		}
		if _, err := b.AddDocument(map[string]forwardindex.Contents{"word": {Values: words}}); err != nil {
			log.Fatal(err)
		}
		if err := b.Write(ctx, store, fmt.Sprintf("segments/%d", i)); err != nil {
			log.Fatal(err)
		}
	}

	fi, err := forwardindex.OpenSegments(ctx, store, "segments/", "contents", annotations)
	if err != nil {
		log.Fatal(err)
	}
	defer fi.Close()

	first, _ := fi.Doc(0).Document("word")
	second, _ := fi.Doc(1).Document("word")
	fmt.Println(first[1] == second[1])
	// Output: true
}
