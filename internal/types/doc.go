/*
Package types holds the wire formats exchanged with the game server and the
local UI socket.

Game topic (/topic/game/{id}), server -> client:

	{"type":"PLAYER_ACTION","gameState":{...},"action":{"playerId":"b2","action":"CALL"},
	 "message":"Bot 2 calls","timestamp":"...","sequenceNumber":42}

Recovery, client -> /app/reconnect:

	{"gameId":"G1","lastSequenceNumber":41,"lastKnownPhase":"FLOP","disconnectedAt":"..."}

Recovery reply on /user/queue/reconnect:

	{"success":true,"gameId":"G1","gameState":{...},"missedEvents":[...],"lastEventSequence":44}

Local UI socket, client -> server:

	{"type":"Action","action":"RAISE","amount":100}
	{"type":"ForceReconnect"}

server -> client:

	{"type":"View","view":{...}}
	{"type":"Error","error":"not your turn"}
*/
package types
