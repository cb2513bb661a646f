// Package protocol declares the typed messages exchanged with clients and
// the JSON codec the transport uses for them.
//
// Every message travels as an envelope:
//
//	{"type": "<message type>", "data": {...}}
//
// Client -> Server
//
//	create_new_lobby: {}
//	join_lobby: {lobby_id}
//	start_game: {}
//	configure_game: {role_pool: [role]}
//	interaction_response: {id, data: <response envelope>}
//	close_connection: {}
//
// Server -> Client
//
//	unknown_lobby_id: {}
//	joined_lobby: {lobby_id, player_id}
//	state_update: {view}
//	player_died: {player_id, cause, role}
//	interaction_request: {id, data: <request envelope>}
//	interaction_followup: {id, data: <followup envelope>}
//	interaction_close: {id}
//	close_connection: {}
//
// Ids are hex strings. Anything with an unknown type decodes to Unrecognized.
package protocol
