package urls

// Documentation URLs printed by the CLI.
// All URLs point to the project documentation at https://github.com/projecta-dev/projecta

// Repository is the project home page
const Repository = "https://github.com/projecta-dev/projecta"

// Troubleshooting covers discovery failures, refused connections and
// rejected handshakes.
const Troubleshooting = Repository + "/blob/main/docs/troubleshooting.md"

// BridgeProtocol documents the JSON messages of the WebSocket bridge
const BridgeProtocol = Repository + "/blob/main/docs/bridge.md"
