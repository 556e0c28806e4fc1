package services

func userKey(id string) string {
	return "user:" + id
}

func userEmailKey(email string) string {
	return "user:email:" + email
}

func friendsKey(id string) string {
	return "user:" + id + ":friends"
}

func incomingRequestsKey(id string) string {
	return "user:" + id + ":incoming_friend_requests"
}

func userGroupsKey(id string) string {
	return "user:" + id + ":groups"
}

func groupKey(id string) string {
	return "group:" + id
}

func groupMembersKey(id string) string {
	return "group:" + id + ":members"
}

func groupAdminsKey(id string) string {
	return "group:" + id + ":admins"
}

func groupMessagesKey(id string) string {
	return "group:" + id + ":messages"
}

func chatMessagesKey(chatKey string) string {
	return "chat:" + chatKey + ":messages"
}
