// Package gemini implements the generation port on Google's Gemini API.
//
// A Backend validates its configuration and, on Launch, creates one genai
// client for the session and checks that the configured model exists. Each
// Workspace carries a single generateContent request: Submit starts it,
// Await collects the first image part of the response, and Fetch turns that
// part into bytes, downloading file-backed parts over HTTP when the API
// returns a URI instead of inline data. Closing a workspace cancels a request
// that is still in flight.
package gemini
