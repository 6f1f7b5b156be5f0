// Package forwardindex stores, for every document of a corpus, the sequence
// of term ids at each token position of each annotation of a field, so that
// snippets and concordances can be rebuilt quickly.
//
// A field such as "contents" has several annotations ("word", "lemma",
// "pos"). Each annotation has its own AnnotationIndex and its own term
// dictionary; a ForwardIndex groups them under one forward index id (fiid)
// per document.
//
// # Storage strategies
//
// External indexes keep one directory per annotation next to the search
// index, with a tokens file, a table of contents and a terms file:
//
//	fi, _ := forwardindex.Create(dir, "contents", []string{"word", "lemma"})
//	fiid, _ := fi.AddDocument(record, map[string]forwardindex.Contents{
//	    "word":  {Values: []string{"The", "cats", "sat", ""}},
//	    "lemma": {Values: []string{"the", "cat", "sit", ""}},
//	})
//	fi.Close()
//
// Integrated indexes live inside index segment files. Each segment numbers
// its terms on its own; the segments' term spaces are merged into one
// global term space when an annotation is first used:
//
//	b, _ := forwardindex.NewSegmentBuilder("contents", []string{"word", "lemma"})
//	b.AddDocument(contents)
//	b.Write(ctx, store, "segments/0001.fi")
//	fi, _ := forwardindex.OpenSegments(ctx, store, "segments/", "contents", []string{"word", "lemma"})
//
// # Retrieval
//
//	doc := fi.Doc(fiid)
//	parts, _ := doc.RetrieveParts("word", []int{0, 10}, []int{5, -1})
//	length, _ := doc.DocLength()
//
// A start or end of -1 stands for the start or end of the document. Ends
// past the document are clamped.
//
// # Initialization
//
// Opening is cheap. Annotation indexes load on a background pool after
// opening and on demand otherwise; a load interrupted by Close is not an
// error, and any other failed load is retried on first use, where its
// error is returned.
//
// # Configuration
//
// Options can be set in code or loaded from YAML with the config package:
//
//	cfg, _ := config.Load("forwardindex.yaml")
//	fi, _ := forwardindex.Open(dir, "contents", annotations, forwardindex.WithConfig(cfg))
package forwardindex
