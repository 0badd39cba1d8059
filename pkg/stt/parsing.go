package stt

func msToSecs(ms uint64) float64 { return float64(ms) / 1000.0 }

func msToSecsPtr(ms *uint64) float64 {
	if ms == nil {
		return 0
	}
	return msToSecs(*ms)
}

// calculateTimeSpan returns (start, duration) covering the word list.
func calculateTimeSpan(words []Word) (float64, float64) {
	if len(words) == 0 {
		return 0, 0
	}
	start := words[0].Start
	end := words[len(words)-1].End
	if end < start {
		end = start
	}
	return start, end - start
}

func splitWhitespaceWords(transcript string) []Word {
	var words []Word
	field := ""
	flush := func() {
		if field != "" {
			words = append(words, Word{Word: field, Confidence: 1.0})
			field = ""
		}
	}
	for _, r := range transcript {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			flush()
			continue
		}
		field += string(r)
	}
	flush()
	return words
}
