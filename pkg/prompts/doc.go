/*
Package prompts holds the chat prompts used to answer questions over the
service graph.

It includes prompts for:

  - Translating a question into a read-only Cypher statement
  - Turning query rows into a plain-language answer
  - Explaining a matched problem and suggesting further checks

Usage:

	library := prompts.NewLibrary()

	messages, err := library.Cypher().Generate().Call(map[string]interface{}{
		"schema":   types.Schema.Describe(),
		"question": "Which machines had a hydraulic leak?",
	})
	if err != nil {
		// handle error
	}
*/
package prompts
