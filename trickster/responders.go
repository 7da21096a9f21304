package trickster

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
)

// Responder is a canned response to an exact message, matched against
// the uppercased message content. Either Message or React is set.
type Responder struct {
	Message string
	React   string
}

// scriptedResponders maps exact (uppercased) message content to a
// canned reply or reaction.
var scriptedResponders = map[string]Responder{
	"F":             {React: "🇫"},
	"L":             {React: "🇱"},
	"RATIO":         {Message: "counter-ratio. you lose."},
	"BASED":         {Message: "based on what?"},
	"GM":            {Message: "it is not a good morning until I say it is"},
	"GN":            {React: "😴"},
	"WHO ASKED":     {Message: "me. I asked."},
	"SUS":           {React: "📮"},
	"SKILL ISSUE":   {Message: "diagnosis confirmed: skill issue"},
	"TRICKSTER BAD": {Message: "social credit has been deducted for this remark"},
}

// scriptedResponse returns the canned response for the message, if one
// exists.
func scriptedResponse(content string) (Command, bool) {
	responder, ok := scriptedResponders[strings.ToUpper(content)]
	if !ok {
		return nothingCommand(), false
	}
	if responder.Message != "" {
		return textCommand("%s", responder.Message), true
	}
	if responder.React != "" {
		return reactCommand(responder.React), true
	}
	return nothingCommand(), false
}

// imResponse handles the dad-joke branch: any message containing "im"
// gets greeted by whatever follows it.
func imResponse(content string) (Command, bool) {
	lower := strings.ToLower(content)
	idx := strings.LastIndex(lower, "im")
	if idx < 0 {
		return nothingCommand(), false
	}
	text := strings.TrimSpace(content[idx+len("im"):])
	if text == "" {
		return nothingCommand(), false
	}
	return replyCommand("Hi %s i'm The Trickster", text), true
}

// shuffleWords returns the message with its words in random order.
func shuffleWords(rng *rand.Rand, content string) string {
	words := strings.Split(content, " ")
	rng.Shuffle(
		len(words), func(i, j int) {
			words[i], words[j] = words[j], words[i]
		},
	)
	return strings.Join(words, " ")
}

type redditListing struct {
	Data struct {
		Children []struct {
			Data struct {
				URLOverriddenByDest string `json:"url_overridden_by_dest"`
				Over18              bool   `json:"over_18"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// randomRedditImage fetches the front page of a random configured
// subreddit and picks a random SFW direct-image link from it.
func randomRedditImage(
	ctx context.Context,
	client *http.Client,
	rng *rand.Rand,
	subreddits []string,
) (string, error) {
	if len(subreddits) == 0 {
		return "", nil
	}
	sub := subreddits[rng.Intn(len(subreddits))]
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		fmt.Sprintf("https://www.reddit.com/r/%s/.json", sub),
		nil,
	)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "trickster-bot/1.0")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("error fetching subreddit %s: %w", sub, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf(
			"unexpected status fetching subreddit %s: %s",
			sub,
			resp.Status,
		)
	}

	var listing redditListing
	if err = json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return "", fmt.Errorf("error decoding subreddit listing: %w", err)
	}

	var candidates []string
	for _, child := range listing.Data.Children {
		if child.Data.Over18 {
			continue
		}
		if !strings.Contains(child.Data.URLOverriddenByDest, "i.") {
			continue
		}
		candidates = append(candidates, child.Data.URLOverriddenByDest)
	}
	if len(candidates) == 0 {
		return "", nil
	}
	return candidates[rng.Intn(len(candidates))], nil
}
