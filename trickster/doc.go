// Package trickster implements a single-guild Discord bot with a
// mischievous streak: scripted responses, random novelty behaviors,
// surprise math and color quizzes, a leveling system, and an
// LLM-backed conversational persona that remembers things about the
// people it talks to.
//
// The bot listens to one configured guild (leaving any other guild it
// is added to) plus direct messages. Every incoming message runs
// through an ordered dispatch list where the first matching behavior
// wins; messages that produce no visible response never count against
// the sender's rate limits.
//
// State lives in an embedded sqlite database (or postgres), covering
// per-user levels, XP, social credit and keyed memories. A small
// read-only HTTP API can be enabled to expose that state.
package trickster
