package server

const SessionCookieName = "ratemall_session"
