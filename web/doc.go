/*
Package web serves the stressdash site: the marketing pages and the
multimodal dashboard.

# Visits

Every browser visit to /dashboard gets its own submission.Controller, keyed
by the stressdash_session cookie. Leaving the dashboard for another page,
POST /dashboard/leave, the idle sweeper, and server shutdown all end the
visit and dispose the controller, releasing its preview handles and webcam.

# Endpoints

Pages:

	GET /            - Landing
	GET /about       - About
	GET /features    - Features
	GET /impact      - Impact
	GET /dashboard   - Dashboard view

Dashboard actions (POST, answer 303 → /dashboard, or JSON state when the
request accepts application/json):

	/dashboard/face            - upload face_image
	/dashboard/face/clear      - remove it
	/dashboard/voice           - upload voice_audio
	/dashboard/voice/clear     - remove it
	/dashboard/signals         - store eeg_data / gsr_data
	/dashboard/capture/start   - open the webcam
	/dashboard/capture/frame   - take the still
	/dashboard/capture/cancel  - close the webcam
	/dashboard/analyze         - store series and submit
	/dashboard/reset           - clear everything
	/dashboard/leave           - end the visit

Other:

	GET /dashboard/capture/live - current webcam frame (JPEG)
	GET /preview/{id}           - preview handle contents
	GET /api/state              - visit state and summary as JSON
	GET /health
*/
package web
