package carrier

import (
	"encoding/xml"
	"fmt"
)

// TwiMLParameter is a custom key-value pair delivered to the media stream in
// the start event's customParameters.
type TwiMLParameter struct {
	XMLName xml.Name `xml:"Parameter"`
	Name    string   `xml:"name,attr"`
	Value   string   `xml:"value,attr"`
}

type twimlStream struct {
	XMLName    xml.Name `xml:"Stream"`
	URL        string   `xml:"url,attr"`
	Parameters []TwiMLParameter
}

type twimlConnect struct {
	XMLName xml.Name `xml:"Connect"`
	Stream  twimlStream
}

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Connect twimlConnect
}

// ConnectStreamTwiML renders the TwiML document instructing the carrier to
// open a bidirectional media stream to streamURL (a wss:// endpoint). The
// given parameters are echoed back in the start event as customParameters.
func ConnectStreamTwiML(streamURL string, params ...TwiMLParameter) (string, error) {
	if streamURL == "" {
		return "", fmt.Errorf("carrier: twiml stream url is required")
	}

	doc := twimlResponse{
		Connect: twimlConnect{
			Stream: twimlStream{URL: streamURL, Parameters: params},
		},
	}
	out, err := xml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("carrier: marshal twiml: %w", err)
	}
	return xml.Header + string(out), nil
}
